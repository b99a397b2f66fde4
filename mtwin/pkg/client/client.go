/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package client defines what the twin service needs from a module client:
// a connection to the twin store that serves desired properties, accepts
// reported ones and carries events and direct methods.
package client

import (
	"context"
	"errors"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

var (
	// ErrNotConnected is returned by calls that need an open client.
	ErrNotConnected = errors.New("module client is not connected")
	// ErrNotSupported is returned for operations a transport cannot carry.
	ErrNotSupported = errors.New("operation not supported by this client")
	// ErrClosed is returned to callers still waiting when the client closes.
	ErrClosed = errors.New("module client closed")
)

// ConnectionStatus is the state reported to the status handler.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
	DisconnectedRetrying
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connected:
		return "Connected"
	case DisconnectedRetrying:
		return "DisconnectedRetrying"
	}
	return "Disconnected"
}

// Twin is the module twin document as read from the store.
type Twin struct {
	Desired  *propbag.Bag `json:"desired"`
	Reported *propbag.Bag `json:"reported"`
}

// Version returns the "$version" entry of the desired properties, or 0.
func (t *Twin) Version() int64 {
	if t == nil {
		return 0
	}
	return BagVersion(t.Desired)
}

type (
	// DesiredHandler receives every desired property patch.
	DesiredHandler func(desired *propbag.Bag) error
	// StatusHandler receives connection state changes.
	StatusHandler func(status ConnectionStatus, reason string)
	// InputHandler receives messages routed to a named module input.
	InputHandler func(input string, msg *Message) error
	// MethodHandler answers a direct method call.
	MethodHandler func(req *MethodRequest) *MethodResponse
)

// ModuleClient is implemented by every transport adapter.
type ModuleClient interface {
	Open(ctx context.Context) error
	Close() error

	GetTwin(ctx context.Context) (*Twin, error)
	UpdateReported(ctx context.Context, reported *propbag.Bag) error
	SetDesiredHandler(h DesiredHandler)
	SetStatusHandler(h StatusHandler)

	SendEvent(ctx context.Context, output string, msg *Message) error
	SetInputHandler(input string, h InputHandler)
	SetMethodHandler(method string, h MethodHandler)
	InvokeMethod(ctx context.Context, deviceID, moduleID string, req *MethodRequest) (*MethodResponse, error)
}
