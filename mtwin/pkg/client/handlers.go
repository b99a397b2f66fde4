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
	"sync"

	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

// Handlers keeps the callbacks registered on a client and dispatches to
// them. Adapters embed it to implement the Set*Handler methods.
type Handlers struct {
	mutex   sync.RWMutex
	desired DesiredHandler
	status  StatusHandler
	inputs  map[string]InputHandler
	methods map[string]MethodHandler
}

func (h *Handlers) SetDesiredHandler(fn DesiredHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.desired = fn
}

func (h *Handlers) SetStatusHandler(fn StatusHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.status = fn
}

// SetInputHandler registers fn for input; a nil fn removes the handler.
func (h *Handlers) SetInputHandler(input string, fn InputHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.inputs == nil {
		h.inputs = make(map[string]InputHandler)
	}
	if fn == nil {
		delete(h.inputs, input)
		return
	}
	h.inputs[input] = fn
}

// SetMethodHandler registers fn for method; a nil fn removes the handler.
func (h *Handlers) SetMethodHandler(method string, fn MethodHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.methods == nil {
		h.methods = make(map[string]MethodHandler)
	}
	if fn == nil {
		delete(h.methods, method)
		return
	}
	h.methods[method] = fn
}

// DispatchDesired hands a desired patch to the registered handler.
func (h *Handlers) DispatchDesired(desired *propbag.Bag) error {
	h.mutex.RLock()
	fn := h.desired
	h.mutex.RUnlock()

	if fn == nil {
		klog.Warningf("desired properties update dropped, no handler registered")
		return nil
	}
	return fn(desired)
}

// DispatchStatus reports a connection state change.
func (h *Handlers) DispatchStatus(status ConnectionStatus, reason string) {
	h.mutex.RLock()
	fn := h.status
	h.mutex.RUnlock()

	if fn != nil {
		fn(status, reason)
	}
}

// DispatchInput hands msg to the handler of input.
func (h *Handlers) DispatchInput(input string, msg *Message) error {
	h.mutex.RLock()
	fn, exist := h.inputs[input]
	h.mutex.RUnlock()

	if !exist {
		klog.Infof("message %s on input %s ignored, no handler", msg.ID, input)
		return nil
	}
	return fn(input, msg)
}

// DispatchMethod calls the handler of req.Name. Unknown methods answer 501.
func (h *Handlers) DispatchMethod(req *MethodRequest) *MethodResponse {
	h.mutex.RLock()
	fn, exist := h.methods[req.Name]
	h.mutex.RUnlock()

	if !exist {
		klog.Warningf("method %s is not registered", req.Name)
		return NewMethodResponse(StatusNotImplemented, nil)
	}
	resp := fn(req)
	if resp == nil {
		resp = NewMethodResponse(StatusOK, nil)
	}
	return resp
}

// QueuePatch puts patch on patches without blocking the caller. When the
// queue is full the oldest queued patch is dropped. It returns the number
// of patches dropped.
func QueuePatch(patches chan *propbag.Bag, patch *propbag.Bag) int {
	dropped := 0
	for {
		select {
		case patches <- patch:
			return dropped
		default:
		}

		select {
		case <-patches:
			dropped++
			klog.Warningf("desired properties queue full, oldest patch dropped")
		default:
		}
	}
}
