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

// Package hub is a module client that exchanges wssocket model messages with
// an edgeOn message hub over MQTT.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwzl/mqtt/client"
	"github.com/jwzl/wssocket/fifo"
	"github.com/jwzl/wssocket/model"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/common"
	mclient "github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

const (
	//mqtt topic should has the format:
	// mqtt/mtwin/cloud[edge]/{clientID}/comm for communication.
	MQTT_SUBTOPIC_PREFIX = "mqtt/mtwin/cloud"
	MQTT_PUBTOPIC_PREFIX = "mqtt/mtwin/edge"
)

type Config struct {
	URL               string
	ClientID          string
	User              string
	Passwd            string
	CertFilePath      string
	KeyFilePath       string
	KeepAliveInterval int
	PingTimeout       int
	QOS               int
	Retain            bool
	MessageCacheDepth uint
	// Timeout bounds requests when the caller's context has no deadline.
	Timeout time.Duration
}

// transport is the part of the jwzl/mqtt client the hub client uses.
type transport interface {
	Start() error
	Subscribe(topic string, fn func(topic string, msg *model.Message)) error
	Publish(topic string, msg *model.Message) error
	Close()
}

type mqttTransport struct {
	cli *client.Client
}

func (t *mqttTransport) Start() error { return t.cli.Start() }

func (t *mqttTransport) Subscribe(topic string, fn func(topic string, msg *model.Message)) error {
	return t.cli.Subscribe(topic, fn)
}

func (t *mqttTransport) Publish(topic string, msg *model.Message) error {
	return t.cli.Publish(topic, msg)
}

func (t *mqttTransport) Close() { t.cli.Close() }

func newMqttTransport(conf *Config) (*mqttTransport, error) {
	c := client.NewClient(conf.URL, conf.User, conf.Passwd, conf.ClientID)
	if c == nil {
		return nil, fmt.Errorf("create mqtt client for %s failed", conf.URL)
	}

	if conf.KeepAliveInterval > 0 {
		c.SetkeepAliveInterval(time.Duration(conf.KeepAliveInterval) * time.Second)
	}
	if conf.PingTimeout > 0 {
		c.SetPingTimeout(time.Duration(conf.PingTimeout) * time.Second)
	}
	if conf.QOS >= 0 && conf.QOS <= 2 {
		c.SetQOS(byte(conf.QOS))
	}
	c.SetRetain(conf.Retain)
	if conf.MessageCacheDepth > 0 {
		c.SetMessageCacheDepth(conf.MessageCacheDepth)
	}
	tlsConfig, err := client.CreateTLSConfig(conf.CertFilePath, conf.KeyFilePath)
	if err != nil {
		klog.Infof("TLSConfig Disabled")
	}
	c.SetTlsConfig(tlsConfig)

	return &mqttTransport{cli: c}, nil
}

var _ mclient.ModuleClient = (*Client)(nil)

type Client struct {
	mclient.Handlers

	config    *Config
	transport transport
	// message fifo.
	messageFifo *fifo.MessageFifo
	pending     mclient.Pending

	mutex   sync.Mutex
	opened  bool
	patches chan *propbag.Bag
	stop    chan struct{}
	// serializes publishes on the transport.
	pubMutex sync.Mutex
}

func NewClient(conf *Config) (*Client, error) {
	t, err := newMqttTransport(conf)
	if err != nil {
		return nil, err
	}
	return newClient(conf, t), nil
}

func newClient(conf *Config, t transport) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	return &Client{
		config:      conf,
		transport:   t,
		messageFifo: fifo.NewMessageFifo(0),
	}
}

func (c *Client) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.opened {
		return nil
	}

	if err := c.transport.Start(); err != nil {
		return err
	}
	//Subscribe this topic.
	subTopic := fmt.Sprintf("%s/%s/#", MQTT_SUBTOPIC_PREFIX, c.config.ClientID)
	if err := c.transport.Subscribe(subTopic, c.messageArrived); err != nil {
		c.transport.Close()
		return err
	}

	c.opened = true
	c.patches = make(chan *propbag.Bag, 16)
	c.stop = make(chan struct{})
	go c.runPatches(c.patches, c.stop)
	go c.routeFromMqtt()

	c.DispatchStatus(mclient.Connected, "connection ok")
	return nil
}

func (c *Client) Close() error {
	c.mutex.Lock()
	if !c.opened {
		c.mutex.Unlock()
		return nil
	}
	c.opened = false
	close(c.stop)
	c.mutex.Unlock()

	c.pending.CloseAll()
	c.transport.Close()
	// wake the router up so it sees the client closed.
	c.messageFifo.Write(nil)
	c.DispatchStatus(mclient.Disconnected, "client closed")
	return nil
}

func (c *Client) isOpened() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.opened
}

func (c *Client) messageArrived(topic string, msg *model.Message) {
	if msg == nil {
		return
	}

	splitString := strings.Split(topic, "/")
	if len(splitString) != 5 {
		klog.Infof("topic =(%v),  msg ignored", splitString)
		return
	}
	if strings.Compare(splitString[4], "comm") == 0 {
		// put the model message into fifo.
		c.messageFifo.Write(msg)
	}
}

// ReadMessage read the message from fifo.
func (c *Client) ReadMessage() (*model.Message, error) {
	return c.messageFifo.Read()
}

// WriteMessage publish the message to cloud.
func (c *Client) WriteMessage(msg *model.Message) error {
	c.pubMutex.Lock()
	defer c.pubMutex.Unlock()

	pubTopic := fmt.Sprintf("%s/%s/comm", MQTT_PUBTOPIC_PREFIX, c.config.ClientID)
	return c.transport.Publish(pubTopic, msg)
}

func (c *Client) routeFromMqtt() {
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			klog.Errorf("failed to receive message from mqtt channel: %v", err)
			return
		}
		if !c.isOpened() {
			return
		}
		if msg == nil {
			continue
		}

		if err := c.dispatch(msg); err != nil {
			klog.Warningf("dispatch err (%v), Ignored!", err)
		}
	}
}

func (c *Client) dispatch(msg *model.Message) error {
	operation := msg.GetOperation()
	kind, name := common.SplitResource(msg.GetResource())

	switch {
	case operation == common.MTWIN_OPS_RESPONSE:
		parentID := msg.GetTag()
		if !c.pending.Resolve(parentID, msg) {
			return fmt.Errorf("response %s has no waiter", parentID)
		}
	case operation == common.MTWIN_OPS_UPDATE && msg.GetResource() == common.MTWIN_RESOURCE_DESIRED:
		twinMsg, err := common.UnMarshalTwinMessage(msg)
		if err != nil {
			return err
		}
		patch := twinMsg.Properties
		if twinMsg.Version > 0 {
			patch.Set(mclient.VersionKey, twinMsg.Version)
		}
		c.queuePatch(patch)
	case operation == common.MTWIN_OPS_PUBLISH && kind == common.MTWIN_RESOURCE_INPUT:
		eventMsg, err := common.UnMarshalEventMessage(msg)
		if err != nil {
			return err
		}
		m := mclient.NewMessage(eventMsg.Payload)
		if eventMsg.ID != "" {
			m.ID = eventMsg.ID
		}
		for k, v := range eventMsg.Properties {
			m.Properties[k] = v
		}
		return c.DispatchInput(name, m)
	case operation == common.MTWIN_OPS_CALL && kind == common.MTWIN_RESOURCE_METHOD:
		methodMsg, err := common.UnMarshalMethodMessage(msg)
		if err != nil {
			return err
		}
		go c.answerMethod(msg, name, methodMsg.Payload)
	default:
		return fmt.Errorf("unsupported message %s %s", operation, msg.GetResource())
	}
	return nil
}

// queuePatch hands patch to the desired worker so handlers may issue
// requests whose responses come through the router.
func (c *Client) queuePatch(patch *propbag.Bag) {
	c.mutex.Lock()
	patches := c.patches
	c.mutex.Unlock()
	if patches == nil {
		return
	}
	mclient.QueuePatch(patches, patch)
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

func (c *Client) answerMethod(req *model.Message, name string, payload []byte) {
	resp := c.DispatchMethod(&mclient.MethodRequest{Name: name, Payload: payload})
	reply := common.BuildResponse(req, c.config.ClientID,
		wire(&common.MethodMessage{Name: name, Status: resp.Status, Payload: resp.Payload}))
	if err := c.WriteMessage(reply); err != nil {
		klog.Errorf("method %s response: %v", name, err)
	}
}

// wire encodes content as a JSON string, the form that survives the broker.
func wire(content interface{}) string {
	data, err := common.MarshalContent(content)
	if err != nil {
		klog.Errorf("encode message content: %v", err)
		return ""
	}
	return string(data)
}

// request sends msg and waits for the response tagged with its ID.
func (c *Client) request(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if !c.isOpened() {
		return nil, mclient.ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	ch := c.pending.Add(msg.GetID())
	if err := c.WriteMessage(msg); err != nil {
		c.pending.Cancel(msg.GetID())
		return nil, err
	}
	v, err := c.pending.Wait(ctx, msg.GetID(), ch)
	if err != nil {
		return nil, err
	}
	return v.(*model.Message), nil
}

func (c *Client) newMessage(target, operation, resource string, content interface{}) *model.Message {
	return common.BuildModelMessage(c.config.ClientID, target, operation, resource, wire(content))
}

func (c *Client) GetTwin(ctx context.Context) (*mclient.Twin, error) {
	reply, err := c.request(ctx, c.newMessage(common.CloudName, common.MTWIN_OPS_GET, common.MTWIN_RESOURCE_TWIN, struct{}{}))
	if err != nil {
		return nil, err
	}
	resp, err := common.UnMarshalResponseMessage(reply)
	if err != nil {
		return nil, err
	}
	if resp.Code != common.RequestSuccessCode {
		return nil, fmt.Errorf("get twin: code %d: %s", resp.Code, resp.Reason)
	}

	twin := &mclient.Twin{Desired: resp.Desired, Reported: resp.Reported}
	if twin.Desired == nil {
		twin.Desired = propbag.New()
	}
	if twin.Reported == nil {
		twin.Reported = propbag.New()
	}
	return twin, nil
}

func (c *Client) UpdateReported(ctx context.Context, reported *propbag.Bag) error {
	msg := c.newMessage(common.CloudName, common.MTWIN_OPS_UPDATE, common.MTWIN_RESOURCE_REPORTED,
		&common.TwinMessage{Properties: reported})
	reply, err := c.request(ctx, msg)
	if err != nil {
		return err
	}
	resp, err := common.UnMarshalResponseMessage(reply)
	if err != nil {
		return err
	}
	if resp.Code != common.RequestSuccessCode && resp.Code != common.NoContentCode {
		return fmt.Errorf("update reported properties: code %d: %s", resp.Code, resp.Reason)
	}
	return nil
}

func (c *Client) SendEvent(ctx context.Context, output string, msg *mclient.Message) error {
	if !c.isOpened() {
		return mclient.ErrNotConnected
	}
	return c.WriteMessage(c.newMessage(common.CloudName, common.MTWIN_OPS_PUBLISH,
		common.BuildResource(common.MTWIN_RESOURCE_EVENT, output),
		&common.EventMessage{ID: msg.ID, Route: output, Properties: msg.Properties, Payload: msg.Payload}))
}

// InvokeMethod calls a method of another module through the hub.
func (c *Client) InvokeMethod(ctx context.Context, deviceID, moduleID string, req *mclient.MethodRequest) (*mclient.MethodResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	target := deviceID
	if moduleID != "" {
		target = deviceID + "/" + moduleID
	}
	reply, err := c.request(ctx, c.newMessage(target, common.MTWIN_OPS_CALL,
		common.BuildResource(common.MTWIN_RESOURCE_METHOD, req.Name),
		&common.MethodMessage{Name: req.Name, Payload: req.Payload}))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("method %s on %s: %w", req.Name, target, err)
		}
		return nil, err
	}

	methodMsg, err := common.UnMarshalMethodMessage(reply)
	if err != nil {
		return nil, err
	}
	return mclient.NewMethodResponse(methodMsg.Status, methodMsg.Payload), nil
}
