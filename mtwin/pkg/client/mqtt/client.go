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

// Package mqtt is a module client speaking the IoT-hub MQTT topic scheme
// through the paho MQTT client.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

var (
	// TokenWaitTime bounds every wait on a paho token.
	TokenWaitTime = 120 * time.Second
)

type Config struct {
	Broker   string
	DeviceID string
	ModuleID string
	Username string
	Password string
	// QOS for publish and subscribe, 0 or 1.
	QOS       byte
	KeepAlive time.Duration
	// Timeout bounds twin requests when the caller's context has no deadline.
	Timeout time.Duration
	TLS     *tls.Config
}

// ClientID is the MQTT client ID of a module identity.
func (c *Config) ClientID() string {
	return c.DeviceID + "/" + c.ModuleID
}

// conn is the part of an MQTT session the client needs.
type conn interface {
	Connect() error
	Disconnect()
	Publish(topic string, payload []byte) error
	Subscribe(topic string, fn func(topic string, payload []byte)) error
}

type twinReply struct {
	status int
	body   []byte
}

var _ client.ModuleClient = (*Client)(nil)

type Client struct {
	client.Handlers

	config  *Config
	conn    conn
	pending client.Pending

	mutex   sync.Mutex
	patches chan *propbag.Bag
	stop    chan struct{}
}

// NewClient returns a client for the module identity in conf.
func NewClient(conf *Config) *Client {
	c := newClient(conf, nil)
	c.conn = newPahoConn(conf, c.onConnect, c.onConnectionLost)
	return c
}

func newClient(conf *Config, cn conn) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	return &Client{config: conf, conn: cn}
}

func (c *Client) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stop != nil {
		return nil
	}

	if err := c.conn.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %v", c.config.Broker, err)
	}

	subscriptions := map[string]func(string, []byte){
		TwinResponseSubTopic: c.onTwinResponse,
		TwinDesiredSubTopic:  c.onDesired,
		MethodSubTopic:       c.onMethod,
		inputSubTopic(c.config.DeviceID, c.config.ModuleID): c.onInput,
	}
	for topic, fn := range subscriptions {
		if err := c.conn.Subscribe(topic, fn); err != nil {
			c.conn.Disconnect()
			return fmt.Errorf("subscribe %s: %v", topic, err)
		}
		klog.Infof("module client subscribed topic %s", topic)
	}

	c.patches = make(chan *propbag.Bag, 16)
	c.stop = make(chan struct{})
	go c.runPatches(c.patches, c.stop)

	c.DispatchStatus(client.Connected, "connection ok")
	return nil
}

func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stop == nil {
		return nil
	}

	close(c.stop)
	c.stop = nil
	c.pending.CloseAll()
	c.conn.Disconnect()
	c.DispatchStatus(client.Disconnected, "client closed")
	return nil
}

func (c *Client) opened() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stop != nil
}

// request publishes payload to the topic built from a fresh request ID and
// waits for the twin response carrying that ID.
func (c *Client) request(ctx context.Context, topic func(rid string) string, payload []byte) (*twinReply, error) {
	if !c.opened() {
		return nil, client.ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	rid := client.NewID()
	ch := c.pending.Add(rid)
	if err := c.conn.Publish(topic(rid), payload); err != nil {
		c.pending.Cancel(rid)
		return nil, err
	}

	v, err := c.pending.Wait(ctx, rid, ch)
	if err != nil {
		return nil, err
	}
	return v.(*twinReply), nil
}

func (c *Client) GetTwin(ctx context.Context) (*client.Twin, error) {
	reply, err := c.request(ctx, twinGetTopic, []byte{})
	if err != nil {
		return nil, err
	}
	if reply.status != client.StatusOK {
		return nil, fmt.Errorf("get twin: status %d: %s", reply.status, reply.body)
	}
	return DecodeTwin(reply.body)
}

func (c *Client) UpdateReported(ctx context.Context, reported *propbag.Bag) error {
	body, err := reported.MarshalJSON()
	if err != nil {
		return err
	}
	reply, err := c.request(ctx, twinReportedTopic, body)
	if err != nil {
		return err
	}
	if reply.status < 200 || reply.status > 299 {
		return fmt.Errorf("update reported properties: status %d: %s", reply.status, reply.body)
	}
	return nil
}

func (c *Client) SendEvent(ctx context.Context, output string, msg *client.Message) error {
	if !c.opened() {
		return client.ErrNotConnected
	}
	topic := eventTopic(c.config.DeviceID, c.config.ModuleID, output, msg.ID, msg.Properties)
	return c.conn.Publish(topic, msg.Payload)
}

// InvokeMethod is not available over MQTT; module to module calls go
// through the edge runtime's HTTP endpoint.
func (c *Client) InvokeMethod(ctx context.Context, deviceID, moduleID string, req *client.MethodRequest) (*client.MethodResponse, error) {
	return nil, client.ErrNotSupported
}

func (c *Client) onConnect() {
	if c.opened() {
		c.DispatchStatus(client.Connected, "connection ok")
	}
}

func (c *Client) onConnectionLost(err error) {
	klog.Errorf("module client connection lost: %v", err)
	c.DispatchStatus(client.DisconnectedRetrying, err.Error())
}

func (c *Client) onTwinResponse(topic string, payload []byte) {
	status, rid, err := parseTwinResponse(topic)
	if err != nil {
		klog.Warningf("%v, ignored", err)
		return
	}
	if !c.pending.Resolve(rid, &twinReply{status: status, body: payload}) {
		klog.Infof("twin response %s has no waiter, ignored", rid)
	}
}

// onDesired queues the patch; patches are applied one at a time, in the
// order they arrived, outside the MQTT router.
func (c *Client) onDesired(topic string, payload []byte) {
	patch := propbag.New()
	if err := patch.UnmarshalJSON(payload); err != nil {
		klog.Errorf("bad desired properties patch on %s: %v", topic, err)
		return
	}

	c.mutex.Lock()
	patches, open := c.patches, c.stop != nil
	c.mutex.Unlock()
	if !open {
		return
	}
	client.QueuePatch(patches, patch)
}

func (c *Client) runPatches(patches <-chan *propbag.Bag, stop <-chan struct{}) {
	for {
		select {
		case patch := <-patches:
			if err := c.DispatchDesired(patch); err != nil {
				klog.Errorf("desired properties patch rejected: %v", err)
			}
		case <-stop:
			return
		}
	}
}

func (c *Client) onMethod(topic string, payload []byte) {
	name, rid, err := parseMethod(topic)
	if err != nil {
		klog.Warningf("%v, ignored", err)
		return
	}

	go func() {
		resp := c.DispatchMethod(&client.MethodRequest{Name: name, Payload: payload})
		body := resp.Payload
		if len(body) == 0 {
			body = []byte("null")
		}
		if err := c.conn.Publish(methodResponseTopic(resp.Status, rid), body); err != nil {
			klog.Errorf("method %s response: %v", name, err)
		}
	}()
}

func (c *Client) onInput(topic string, payload []byte) {
	input, props, err := parseInput(topic)
	if err != nil {
		klog.Warningf("%v, ignored", err)
		return
	}

	msg := client.NewMessage(payload)
	for k := range props {
		switch {
		case k == messageIDProperty:
			msg.ID = props.Get(k)
		case strings.HasPrefix(k, "$."):
		default:
			msg.Properties[k] = props.Get(k)
		}
	}
	if err := c.DispatchInput(input, msg); err != nil {
		klog.Errorf("input %s handler: %v", input, err)
	}
}

// DecodeTwin reads a twin document {"desired": {...}, "reported": {...}}.
func DecodeTwin(body []byte) (*client.Twin, error) {
	doc := propbag.New()
	if err := doc.UnmarshalJSON(body); err != nil {
		return nil, fmt.Errorf("decode twin: %v", err)
	}

	twin := &client.Twin{Desired: propbag.New(), Reported: propbag.New()}
	if desired, ok := doc.Section("desired"); ok {
		twin.Desired = desired
	}
	if reported, ok := doc.Section("reported"); ok {
		twin.Reported = reported
	}
	return twin, nil
}
