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

package mtwin

import (
	gocontext "context"
	"strings"
	"time"

	"github.com/jwzl/wssocket/model"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/common"
	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/service"
)

var (
	// RequestTimeout bounds the client calls made for other modules.
	RequestTimeout = 30 * time.Second
)

// Messenger moves messages between beehive modules.
type Messenger interface {
	Send(module string, message interface{})
	Receive(module string) (interface{}, error)
}

type Controller struct {
	context Messenger
	service *service.TwinService
	// modules notified of every accepted twin.
	notify []string
}

func NewController(c Messenger, svc *service.TwinService, notify []string) *Controller {
	return &Controller{
		context: c,
		service: svc,
		notify:  notify,
	}
}

// Start starts the twin service and routes messages from other modules
// until the module context is cleaned up.
func (mc *Controller) Start(ctx gocontext.Context) error {
	mc.service.Subscribe(mc.syncTwin)
	if err := mc.service.Start(ctx); err != nil {
		return err
	}

	mc.routeFromModules()
	return nil
}

func (mc *Controller) Stop() {
	if err := mc.service.Stop(); err != nil {
		klog.Errorf("stop twin service: %v", err)
	}
}

// syncTwin sends the accepted twin to the notified modules.
func (mc *Controller) syncTwin(twin interface{}) {
	bag, err := mc.service.Export(twin)
	if err != nil {
		klog.Errorf("export module twin: %v", err)
		return
	}

	content := &common.TwinMessage{Version: mc.service.Version(), Properties: bag}
	for _, target := range mc.notify {
		msg := common.BuildModelMessage(common.TwinModuleName, target,
			common.MTWIN_OPS_SYNC, common.MTWIN_RESOURCE_TWIN, content)
		klog.Infof("Send sync message (%v) to %s", msg.GetID(), target)
		mc.context.Send(target, msg)
	}
}

func (mc *Controller) routeFromModules() {
	for {
		v, err := mc.context.Receive(common.TwinModuleName)
		if err != nil {
			klog.Errorf("failed to receive message from modules: %v", err)
			return
		}

		var msg *model.Message
		switch m := v.(type) {
		case *model.Message:
			msg = m
		case model.Message:
			msg = &m
		}
		if msg == nil {
			//invalid message type or msg == nil, Ignored.
			continue
		}

		mc.dispatch(msg)
	}
}

func (mc *Controller) dispatch(msg *model.Message) {
	kind, name := common.SplitResource(msg.GetResource())

	switch {
	case msg.GetOperation() == common.MTWIN_OPS_GET && msg.GetResource() == common.MTWIN_RESOURCE_TWIN:
		mc.getTwin(msg)
	case msg.GetOperation() == common.MTWIN_OPS_UPDATE && msg.GetResource() == common.MTWIN_RESOURCE_DESIRED:
		mc.applyDesired(msg)
	case msg.GetOperation() == common.MTWIN_OPS_PUBLISH && kind == common.MTWIN_RESOURCE_EVENT:
		mc.sendEvent(msg, name)
	case msg.GetOperation() == common.MTWIN_OPS_CALL && kind == common.MTWIN_RESOURCE_METHOD:
		go mc.invokeMethod(msg, name)
	default:
		klog.Warningf("message %s %s from %s ignored", msg.GetOperation(), msg.GetResource(), msg.GetSource())
	}
}

func (mc *Controller) reply(req *model.Message, content interface{}) {
	resp := common.BuildResponse(req, common.TwinModuleName, content)
	mc.context.Send(req.GetSource(), resp)
}

func (mc *Controller) getTwin(msg *model.Message) {
	reported, err := mc.service.Reported()
	if err != nil {
		mc.reply(msg, &common.TwinResponse{Code: common.InternalErrorCode, Reason: err.Error()})
		return
	}
	mc.reply(msg, &common.TwinResponse{Code: common.RequestSuccessCode, Reported: reported})
}

// applyDesired runs a desired pass requested by an edge module.
func (mc *Controller) applyDesired(msg *model.Message) {
	twinMsg, err := common.UnMarshalTwinMessage(msg)
	if err != nil {
		mc.reply(msg, &common.TwinResponse{Code: common.BadRequestCode, Reason: err.Error()})
		return
	}

	ctx, cancel := gocontext.WithTimeout(gocontext.Background(), RequestTimeout)
	defer cancel()
	if err := mc.service.ApplyDesired(ctx, twinMsg.Properties); err != nil {
		klog.Warningf("desired properties from %s rejected: %v", msg.GetSource(), err)
		mc.reply(msg, &common.TwinResponse{Code: common.BadRequestCode, Reason: err.Error()})
		return
	}
	mc.reply(msg, &common.TwinResponse{Code: common.RequestSuccessCode})
}

func (mc *Controller) sendEvent(msg *model.Message, output string) {
	eventMsg, err := common.UnMarshalEventMessage(msg)
	if err != nil {
		klog.Warningf("invalid event from %s: %v", msg.GetSource(), err)
		return
	}

	m := client.NewMessage(eventMsg.Payload)
	if eventMsg.ID != "" {
		m.ID = eventMsg.ID
	}
	for k, v := range eventMsg.Properties {
		m.Properties[k] = v
	}

	ctx, cancel := gocontext.WithTimeout(gocontext.Background(), RequestTimeout)
	defer cancel()
	if err := mc.service.SendMessage(ctx, output, m); err != nil {
		klog.Errorf("send event to %s: %v", output, err)
	}
}

func (mc *Controller) invokeMethod(msg *model.Message, name string) {
	methodMsg, err := common.UnMarshalMethodMessage(msg)
	if err != nil {
		mc.reply(msg, &common.MethodMessage{Name: name, Status: common.BadRequestCode})
		return
	}

	deviceID, moduleID := methodMsg.Target, ""
	if i := strings.Index(methodMsg.Target, "/"); i >= 0 {
		deviceID, moduleID = methodMsg.Target[:i], methodMsg.Target[i+1:]
	}

	ctx, cancel := gocontext.WithTimeout(gocontext.Background(), RequestTimeout)
	defer cancel()
	resp, err := mc.service.InvokeMethod(ctx, deviceID, moduleID,
		&client.MethodRequest{Name: name, Payload: methodMsg.Payload})
	if err != nil {
		klog.Errorf("invoke method %s on %s: %v", name, methodMsg.Target, err)
		mc.reply(msg, &common.MethodMessage{Name: name, Status: common.InternalErrorCode, Payload: []byte(err.Error())})
		return
	}
	mc.reply(msg, &common.MethodMessage{Name: name, Status: resp.Status, Payload: resp.Payload})
}
