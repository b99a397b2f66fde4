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

package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/jwzl/wssocket/model"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Twin sync message, sent to other modules after every accepted update and
// carried as desired or reported patch between edge and cloud.
type TwinMessage struct {
	Version    int64        `json:"version,omitempty"`
	Properties *propbag.Bag `json:"properties"`
}

// Response message format
type TwinResponse struct {
	Code     int          `json:"code"`
	Reason   string       `json:"reason,omitempty"`
	Desired  *propbag.Bag `json:"desired,omitempty"`
	Reported *propbag.Bag `json:"reported,omitempty"`
}

// EventMessage is a module event on an output or input route.
type EventMessage struct {
	ID         string            `json:"id"`
	Route      string            `json:"route"`
	Properties map[string]string `json:"properties,omitempty"`
	Payload    []byte            `json:"payload,omitempty"`
}

// MethodMessage is a direct method call or its answer.
type MethodMessage struct {
	Name string `json:"name,omitempty"`
	// Target is "device/module" of a call made by an edge module.
	Target  string `json:"target,omitempty"`
	Status  int    `json:"status,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

func BuildModelMessage(source string, target string, operation string, resource string, content interface{}) *model.Message {
	now := time.Now().UnixNano() / 1e6

	//Header
	msg := model.NewMessage("")
	msg.BuildHeader("", now)

	//Router
	msg.BuildRouter(source, "", target, resource, operation)

	//content
	switch content.(type) {
	case []byte, string:
		msg.Content = content
	default:
		bytes, err := json.Marshal(content)
		if err == nil {
			msg.Content = bytes
		}
	}

	return msg
}

// BuildResponse builds the reply to req; the reply's tag is req's ID.
func BuildResponse(req *model.Message, source string, content interface{}) *model.Message {
	resp := BuildModelMessage(source, req.GetSource(), MTWIN_OPS_RESPONSE, req.GetResource(), content)
	resp.SetTag(req.GetID())
	return resp
}

// MarshalContent encodes a message content.
func MarshalContent(content interface{}) ([]byte, error) {
	return json.Marshal(content)
}

// GetContentData returns the raw content of msg. Messages that crossed a
// broker carry their content as a string.
func GetContentData(msg *model.Message) ([]byte, error) {
	switch content := msg.GetContent().(type) {
	case []byte:
		return content, nil
	case string:
		return []byte(content), nil
	case nil:
		return nil, errors.New("message has no content")
	default:
		return json.Marshal(content)
	}
}

// UnMarshalTwinMessage.
func UnMarshalTwinMessage(msg *model.Message) (*TwinMessage, error) {
	var twinMsg TwinMessage
	if err := unmarshalContent(msg, &twinMsg); err != nil {
		return nil, err
	}
	if twinMsg.Properties == nil {
		twinMsg.Properties = propbag.New()
	}
	return &twinMsg, nil
}

// UnMarshalResponseMessage
func UnMarshalResponseMessage(msg *model.Message) (*TwinResponse, error) {
	var rspMsg TwinResponse
	if err := unmarshalContent(msg, &rspMsg); err != nil {
		return nil, err
	}
	return &rspMsg, nil
}

// UnMarshalEventMessage
func UnMarshalEventMessage(msg *model.Message) (*EventMessage, error) {
	var eventMsg EventMessage
	if err := unmarshalContent(msg, &eventMsg); err != nil {
		return nil, err
	}
	return &eventMsg, nil
}

// UnMarshalMethodMessage
func UnMarshalMethodMessage(msg *model.Message) (*MethodMessage, error) {
	var methodMsg MethodMessage
	if err := unmarshalContent(msg, &methodMsg); err != nil {
		return nil, err
	}
	return &methodMsg, nil
}

func unmarshalContent(msg *model.Message, v interface{}) error {
	content, err := GetContentData(msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("invaliad message content: %v", err)
	}
	return nil
}

// BuildResource joins a resource kind and a name: "event/output1".
func BuildResource(kind, name string) string {
	return kind + "/" + name
}

// SplitResource is the reverse of BuildResource.
func SplitResource(resource string) (kind, name string) {
	i := strings.LastIndex(resource, "/")
	if i < 0 {
		return resource, ""
	}
	return resource[:i], resource[i+1:]
}
