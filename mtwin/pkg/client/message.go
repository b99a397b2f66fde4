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

package client

import (
	encjson "encoding/json"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

const (
	// VersionKey is the twin metadata entry that carries the document version.
	VersionKey = "$version"

	StatusOK             = 200
	StatusBadRequest     = 400
	StatusNotFound       = 404
	StatusInternalError  = 500
	StatusNotImplemented = 501
)

// Message is an event sent to a module output or received on an input.
type Message struct {
	ID         string            `json:"id"`
	Payload    []byte            `json:"payload"`
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewMessage returns a message with a fresh ID.
func NewMessage(payload []byte) *Message {
	return &Message{
		ID:         NewID(),
		Payload:    payload,
		Properties: make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}
}

// NewID returns a random identifier for messages and requests.
func NewID() string {
	return uuid.NewV4().String()
}

func (m *Message) String() string {
	if m == nil || len(m.Payload) == 0 {
		return "<empty>"
	}
	return string(m.Payload)
}

// MethodRequest is a direct method call.
type MethodRequest struct {
	Name    string        `json:"methodName"`
	Payload []byte        `json:"payload,omitempty"`
	Timeout time.Duration `json:"-"`
}

// MethodResponse is the answer of a direct method call.
type MethodResponse struct {
	Status  int    `json:"status"`
	Payload []byte `json:"payload,omitempty"`
}

// NewMethodResponse returns a response carrying status and payload.
func NewMethodResponse(status int, payload []byte) *MethodResponse {
	return &MethodResponse{Status: status, Payload: payload}
}

func (r *MethodResponse) String() string {
	return fmt.Sprintf("status %d: %s", r.Status, r.Payload)
}

// BagVersion reads the "$version" entry of a twin bag.
func BagVersion(b *propbag.Bag) int64 {
	v, ok := b.Get(VersionKey)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case encjson.Number:
		i, _ := n.Int64()
		return i
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// StripMetadata returns a copy of b without "$" prefixed metadata entries.
func StripMetadata(b *propbag.Bag) *propbag.Bag {
	out := propbag.New()
	b.Range(func(name string, value interface{}) bool {
		if len(name) == 0 || name[0] != '$' {
			out.Set(name, value)
		}
		return true
	})
	return out
}
