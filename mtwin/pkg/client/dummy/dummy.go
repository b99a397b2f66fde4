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

// Package dummy is a module client for local development. It keeps the twin
// in memory, optionally seeded from a YAML or JSON file, and logs every call
// instead of talking to a hub.
package dummy

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

// Event is one message sent through SendEvent.
type Event struct {
	Output  string
	Message *client.Message
}

var _ client.ModuleClient = (*Client)(nil)

type Client struct {
	client.Handlers

	file     string
	mutex    sync.Mutex
	opened   bool
	desired  *propbag.Bag
	reported *propbag.Bag
	events   []Event
}

type Option func(*Client)

// WithTwinFile seeds the desired properties from a .yaml, .yml or .json file
// when the client opens.
func WithTwinFile(path string) Option {
	return func(c *Client) {
		c.file = path
	}
}

// WithDesired seeds the desired properties from bag.
func WithDesired(bag *propbag.Bag) Option {
	return func(c *Client) {
		c.desired = bag.Clone()
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		desired:  propbag.New(),
		reported: propbag.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Open(ctx context.Context) error {
	c.mutex.Lock()
	if c.file != "" {
		bag, err := LoadBag(c.file)
		if err != nil {
			c.mutex.Unlock()
			return err
		}
		c.desired = bag
	}
	c.opened = true
	desired := c.desired.String()
	c.mutex.Unlock()

	klog.Infof("DummyClient: opened, desired properties %s", desired)
	c.DispatchStatus(client.Connected, "dummy client opened")
	return nil
}

func (c *Client) Close() error {
	c.mutex.Lock()
	c.opened = false
	c.mutex.Unlock()

	klog.Infof("DummyClient: closed")
	c.DispatchStatus(client.Disconnected, "dummy client closed")
	return nil
}

func (c *Client) GetTwin(ctx context.Context) (*client.Twin, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.opened {
		return nil, client.ErrNotConnected
	}
	return &client.Twin{Desired: c.desired.Clone(), Reported: c.reported.Clone()}, nil
}

func (c *Client) UpdateReported(ctx context.Context, reported *propbag.Bag) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.opened {
		return client.ErrNotConnected
	}

	reported.Range(func(name string, value interface{}) bool {
		c.reported.Set(name, value)
		return true
	})
	c.reported.Set(client.VersionKey, client.BagVersion(c.reported)+1)
	klog.Infof("DummyClient: reported properties %v", reported)
	return nil
}

// Reported returns a copy of everything reported so far.
func (c *Client) Reported() *propbag.Bag {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.reported.Clone()
}

func (c *Client) SendEvent(ctx context.Context, output string, msg *client.Message) error {
	klog.Infof("DummyClient: sending message to output %s. Content: %s", output, msg)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.events = append(c.events, Event{Output: output, Message: msg})
	return nil
}

// Events returns the messages sent so far.
func (c *Client) Events() []Event {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *Client) SetInputHandler(input string, h client.InputHandler) {
	klog.Infof("DummyClient: setting input message handler for input %s", input)
	c.Handlers.SetInputHandler(input, h)
}

func (c *Client) SetMethodHandler(method string, h client.MethodHandler) {
	klog.Infof("DummyClient: setting method handler for method %s", method)
	c.Handlers.SetMethodHandler(method, h)
}

// InvokeMethod only logs the call and answers 200 with an empty payload.
func (c *Client) InvokeMethod(ctx context.Context, deviceID, moduleID string, req *client.MethodRequest) (*client.MethodResponse, error) {
	klog.Infof("DummyClient: invoking method %s on %s/%s. Payload: %s", req.Name, deviceID, moduleID, req.Payload)
	return client.NewMethodResponse(client.StatusOK, nil), nil
}

// PushDesired merges patch into the desired properties, bumps the version
// and hands the patch to the desired handler, as a hub would.
func (c *Client) PushDesired(patch *propbag.Bag) error {
	c.mutex.Lock()
	patch = patch.Clone()
	patch.Range(func(name string, value interface{}) bool {
		c.desired.Set(name, value)
		return true
	})
	version := client.BagVersion(c.desired) + 1
	c.desired.Set(client.VersionKey, version)
	patch.Set(client.VersionKey, version)
	c.mutex.Unlock()

	klog.Infof("DummyClient: desired properties patch %v", patch)
	return c.DispatchDesired(patch)
}

// DeliverInput hands msg to the handler of input.
func (c *Client) DeliverInput(input string, msg *client.Message) error {
	return c.DispatchInput(input, msg)
}

// CallMethod runs a locally registered method handler.
func (c *Client) CallMethod(req *client.MethodRequest) *client.MethodResponse {
	return c.DispatchMethod(req)
}

// LoadBag reads a property bag from a YAML or JSON file, keeping the
// document order.
func LoadBag(path string) (*propbag.Bag, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	bag := propbag.New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = bag.UnmarshalJSON(data)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, bag)
	default:
		return nil, fmt.Errorf("twin file %s: unknown format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("twin file %s: %v", path, err)
	}
	return bag, nil
}
