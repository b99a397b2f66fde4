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

package mqtt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Topics of an IoT-hub style broker. Twin and method requests carry a
// request ID in the "$rid" query parameter that the reply echoes.
const (
	TwinResponseSubTopic = "$iothub/twin/res/#"
	TwinDesiredSubTopic  = "$iothub/twin/PATCH/properties/desired/#"
	MethodSubTopic       = "$iothub/methods/POST/#"

	twinResponsePrefix = "$iothub/twin/res/"
	twinDesiredPrefix  = "$iothub/twin/PATCH/properties/desired/"
	methodPrefix       = "$iothub/methods/POST/"

	outputProperty    = "$.on"
	messageIDProperty = "$.mid"
)

func twinGetTopic(rid string) string {
	return "$iothub/twin/GET/?$rid=" + rid
}

func twinReportedTopic(rid string) string {
	return "$iothub/twin/PATCH/properties/reported/?$rid=" + rid
}

func methodResponseTopic(status int, rid string) string {
	return fmt.Sprintf("$iothub/methods/res/%d/?$rid=%s", status, rid)
}

func moduleTopic(deviceID, moduleID string) string {
	return fmt.Sprintf("devices/%s/modules/%s", deviceID, moduleID)
}

func inputSubTopic(deviceID, moduleID string) string {
	return moduleTopic(deviceID, moduleID) + "/inputs/#"
}

// eventTopic encodes the message properties, the output name among them,
// into the topic the way the hub expects.
func eventTopic(deviceID, moduleID, output, messageID string, props map[string]string) string {
	values := url.Values{}
	for k, v := range props {
		values.Set(k, v)
	}
	if output != "" {
		values.Set(outputProperty, output)
	}
	if messageID != "" {
		values.Set(messageIDProperty, messageID)
	}
	return moduleTopic(deviceID, moduleID) + "/messages/events/" + values.Encode()
}

// splitTopic separates the path of a topic from its "/?" query part.
func splitTopic(topic string) (string, url.Values) {
	i := strings.Index(topic, "/?")
	if i < 0 {
		return topic, url.Values{}
	}
	query, err := url.ParseQuery(topic[i+2:])
	if err != nil {
		query = url.Values{}
	}
	return topic[:i], query
}

// parseTwinResponse reads "$iothub/twin/res/{status}/?$rid={rid}".
func parseTwinResponse(topic string) (status int, rid string, err error) {
	path, query := splitTopic(topic)
	status, err = strconv.Atoi(strings.TrimPrefix(path, twinResponsePrefix))
	if err != nil {
		return 0, "", fmt.Errorf("bad twin response topic %s", topic)
	}
	return status, query.Get("$rid"), nil
}

// parseMethod reads "$iothub/methods/POST/{name}/?$rid={rid}".
func parseMethod(topic string) (name, rid string, err error) {
	path, query := splitTopic(topic)
	name = strings.Trim(strings.TrimPrefix(path, methodPrefix), "/")
	rid = query.Get("$rid")
	if name == "" || rid == "" {
		return "", "", fmt.Errorf("bad method topic %s", topic)
	}
	return name, rid, nil
}

// parseInput reads "devices/{d}/modules/{m}/inputs/{input}/{properties}".
func parseInput(topic string) (input string, props url.Values, err error) {
	parts := strings.SplitN(topic, "/", 7)
	if len(parts) < 6 || parts[0] != "devices" || parts[2] != "modules" || parts[4] != "inputs" || parts[5] == "" {
		return "", nil, fmt.Errorf("bad input topic %s", topic)
	}
	props = url.Values{}
	if len(parts) == 7 && parts[6] != "" {
		if props, err = url.ParseQuery(parts[6]); err != nil {
			return "", nil, fmt.Errorf("bad input properties in %s: %v", topic, err)
		}
	}
	return parts[5], props, nil
}
