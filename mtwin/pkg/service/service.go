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

// Package service keeps a typed module twin in sync with the cloud.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/mapper"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

// ErrNotStarted is returned by calls that need a started service.
var ErrNotStarted = errors.New("twin service not started")

// UpdateFunc receives every accepted twin. The twin must not be modified.
type UpdateFunc func(twin interface{})

type Option func(*TwinService)

// WithLocalSource bootstraps the twin from src instead of the cloud.
func WithLocalSource(src mapper.Source) Option {
	return func(s *TwinService) {
		s.local = src
	}
}

// WithReportTimeout bounds the report sent after a desired update.
func WithReportTimeout(d time.Duration) Option {
	return func(s *TwinService) {
		s.reportTimeout = d
	}
}

// TwinService owns the current twin of a module. Every inbound pass builds
// a fresh instance, applies the bag, reports the export and notifies the
// subscribers. Passes run one at a time.
type TwinService struct {
	client        client.ModuleClient
	mapper        *mapper.Mapper
	local         mapper.Source
	reportTimeout time.Duration

	// serializes inbound passes.
	passMutex sync.Mutex

	mutex       sync.RWMutex
	started     bool
	connected   bool
	twin        interface{}
	version     int64
	subscribers []UpdateFunc
}

func NewTwinService(cli client.ModuleClient, m *mapper.Mapper, opts ...Option) *TwinService {
	s := &TwinService{
		client:        cli,
		mapper:        m,
		reportTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the client and loads the first twin.
func (s *TwinService) Start(ctx context.Context) error {
	s.client.SetStatusHandler(s.onStatus)
	s.client.SetDesiredHandler(s.onDesired)

	if err := s.client.Open(ctx); err != nil {
		return fmt.Errorf("open module client: %w", err)
	}
	s.mutex.Lock()
	s.started = true
	s.mutex.Unlock()

	if s.local != nil {
		klog.Infof("bootstrap module twin from local configuration")
		return s.ApplySource(ctx, s.local)
	}

	twin, err := s.client.GetTwin(ctx)
	if err != nil {
		return fmt.Errorf("get module twin: %w", err)
	}
	return s.ApplyDesired(ctx, twin.Desired)
}

// Stop closes the client.
func (s *TwinService) Stop() error {
	s.mutex.Lock()
	s.started = false
	s.mutex.Unlock()
	return s.client.Close()
}

func (s *TwinService) onStatus(status client.ConnectionStatus, reason string) {
	klog.Infof("connection status changed to %s: %s", status, reason)
	s.mutex.Lock()
	s.connected = status == client.Connected
	s.mutex.Unlock()
}

func (s *TwinService) onDesired(desired *propbag.Bag) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.reportTimeout)
	defer cancel()

	if err := s.ApplyDesired(ctx, desired); err != nil {
		klog.Errorf("desired properties rejected: %v", err)
		return err
	}
	return nil
}

// ApplyDesired runs an inbound pass over desired. A failing pass leaves
// the current twin in place and reports nothing.
func (s *TwinService) ApplyDesired(ctx context.Context, desired *propbag.Bag) error {
	s.passMutex.Lock()
	defer s.passMutex.Unlock()

	version := client.BagVersion(desired)
	klog.Infof("desired properties update, version %d", version)
	klog.V(4).Infof("desired properties: %s", desired)

	twin := s.mapper.Schema().New()
	if err := s.mapper.ApplyBag(client.StripMetadata(desired), twin); err != nil {
		return err
	}
	return s.accept(ctx, twin, version)
}

// ApplySource runs an inbound pass over a key-value source.
func (s *TwinService) ApplySource(ctx context.Context, src mapper.Source) error {
	s.passMutex.Lock()
	defer s.passMutex.Unlock()

	twin := s.mapper.Schema().New()
	if err := s.mapper.ApplySource(src, twin); err != nil {
		return err
	}
	return s.accept(ctx, twin, 0)
}

func (s *TwinService) accept(ctx context.Context, twin interface{}, version int64) error {
	reported, err := s.mapper.Export(twin)
	if err != nil {
		return err
	}
	klog.V(4).Infof("reported properties: %s", reported)

	if err := s.client.UpdateReported(ctx, reported); err != nil {
		return fmt.Errorf("report module twin: %w", err)
	}

	s.mutex.Lock()
	s.twin = twin
	if version > 0 {
		s.version = version
	}
	subscribers := append([]UpdateFunc(nil), s.subscribers...)
	s.mutex.Unlock()

	klog.Infof("module twin updated")
	for _, fn := range subscribers {
		fn(twin)
	}
	return nil
}

// Twin returns the current twin, nil before the first accepted pass.
func (s *TwinService) Twin() interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.twin
}

// Version returns the desired version of the current twin.
func (s *TwinService) Version() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.version
}

// Reported exports the current twin.
func (s *TwinService) Reported() (*propbag.Bag, error) {
	twin := s.Twin()
	if twin == nil {
		return propbag.New(), nil
	}
	return s.Export(twin)
}

// Export returns the bag reported for twin.
func (s *TwinService) Export(twin interface{}) (*propbag.Bag, error) {
	return s.mapper.Export(twin)
}

func (s *TwinService) IsConnected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connected
}

// Subscribe registers fn for every accepted twin.
func (s *TwinService) Subscribe(fn UpdateFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *TwinService) isStarted() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.started
}

// SendEvent sends payload on output.
func (s *TwinService) SendEvent(ctx context.Context, output string, payload []byte) error {
	return s.SendMessage(ctx, output, client.NewMessage(payload))
}

// SendMessage sends msg on output.
func (s *TwinService) SendMessage(ctx context.Context, output string, msg *client.Message) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	klog.V(4).Infof("send message %s on %s", msg.ID, output)
	return s.client.SendEvent(ctx, output, msg)
}

func (s *TwinService) SetInputHandler(input string, fn client.InputHandler) {
	s.client.SetInputHandler(input, fn)
}

func (s *TwinService) SetMethodHandler(method string, fn client.MethodHandler) {
	s.client.SetMethodHandler(method, fn)
}

func (s *TwinService) InvokeMethod(ctx context.Context, deviceID, moduleID string, req *client.MethodRequest) (*client.MethodResponse, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.client.InvokeMethod(ctx, deviceID, moduleID, req)
}
