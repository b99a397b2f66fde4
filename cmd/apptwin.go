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

package cmd

import (
	"time"

	"github.com/jwzl/edgeTwin/mtwin/pkg/mapper"
)

type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

func (LogLevel) EnumMembers() map[string]int64 {
	return map[string]int64{"Error": 0, "Warning": 1, "Info": 2, "Debug": 3}
}

// Settings shared by every AppTwin instance.
var (
	EventHubConnectionString = ""
	FileStorageLocation      = ""
)

// AppTwin is the module twin of the edgeTwin sample application.
type AppTwin struct {
	OutputName     string
	ReportInterval time.Duration
	Threshold      float64
	LogLevel       LogLevel
	Sensors        []string
	MaxRetries     *int
	// DeviceID is set by the module itself and only reported.
	DeviceID string `twin:",readonly"`
}

// Version of the application, reported with every twin.
var Version = "v0.1.0"

var AppTwinSchema = mapper.MustSchema(AppTwin{}).
	Shared("EventHubConnectionString", &EventHubConnectionString).
	Shared("FileStorageLocation", &FileStorageLocation).
	Computed("Version", func(interface{}) interface{} { return Version })

// NewAppTwinMapper returns the mapper of AppTwin. Twins sent by an IoT hub
// may carry their values in a nested "deployment" document.
func NewAppTwinMapper() *mapper.Mapper {
	return mapper.New(AppTwinSchema, mapper.WithFallbackSection("deployment"))
}
