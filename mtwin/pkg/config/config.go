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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwzl/beehive/pkg/common/config"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/client/dummy"
	"github.com/jwzl/edgeTwin/mtwin/pkg/client/hub"
	"github.com/jwzl/edgeTwin/mtwin/pkg/client/mqtt"
)

const (
	ClientDummy = "dummy"
	ClientMqtt  = "mqtt"
	ClientHub   = "hub"

	ModeProduction  = "production"
	ModeDevelopment = "development"

	DefaultSection = "ModuleTwin"
)

// Store reads module settings. config.CONFIG satisfies it.
type Store interface {
	GetValue(key string) Value
}

// Value is one setting of a Store.
type Value interface {
	ToString() (string, error)
	ToInt() (int, error)
	ToBool() (bool, error)
}

type beehiveStore struct{}

func (beehiveStore) GetValue(key string) Value {
	return config.CONFIG.GetValue(key)
}

// ModuleConfig holds the settings of the mtwin module.
type ModuleConfig struct {
	// Client is one of dummy, mqtt or hub.
	Client string
	// Mode is production or development. Development mode takes the twin
	// values from the LocalFile section instead of the cloud.
	Mode         string
	LocalFile    string
	LocalSection string
	// Notify lists the modules receiving every accepted twin.
	Notify []string

	Mqtt      *mqtt.Config
	Hub       *hub.Config
	DummyFile string
}

// Development reports whether the twin is bootstrapped from LocalFile.
func (c *ModuleConfig) Development() bool {
	return c.Mode == ModeDevelopment
}

// GetModuleConfig reads the module settings from the beehive config store.
func GetModuleConfig() (*ModuleConfig, error) {
	return Load(beehiveStore{})
}

func getString(s Store, key, def string) string {
	v, err := s.GetValue(key).ToString()
	if err != nil || v == "" {
		klog.Infof("%s is empty", key)
		return def
	}
	return v
}

func getInt(s Store, key string, def int) int {
	v, err := s.GetValue(key).ToInt()
	if err != nil {
		klog.Infof("%s is empty", key)
		return def
	}
	return v
}

func getBool(s Store, key string, def bool) bool {
	v, err := s.GetValue(key).ToBool()
	if err != nil {
		klog.Infof("%s is empty", key)
		return def
	}
	return v
}

// Load reads the module settings from s.
func Load(s Store) (*ModuleConfig, error) {
	conf := &ModuleConfig{}

	conf.Client = getString(s, "mtwin.client", ClientDummy)
	switch conf.Client {
	case ClientDummy, ClientMqtt, ClientHub:
	default:
		return nil, fmt.Errorf("mtwin.client: unknown client %q", conf.Client)
	}

	conf.Mode = getString(s, "mtwin.mode", ModeProduction)
	if conf.Mode != ModeProduction && conf.Mode != ModeDevelopment {
		return nil, fmt.Errorf("mtwin.mode: unknown mode %q", conf.Mode)
	}
	conf.LocalFile = getString(s, "mtwin.local.file", "")
	conf.LocalSection = getString(s, "mtwin.local.section", DefaultSection)
	if conf.Development() && conf.LocalFile == "" {
		return nil, fmt.Errorf("mtwin.local.file is required in %s mode", ModeDevelopment)
	}

	for _, name := range strings.Split(getString(s, "mtwin.notify", ""), ",") {
		if name = strings.TrimSpace(name); name != "" {
			conf.Notify = append(conf.Notify, name)
		}
	}
	conf.DummyFile = getString(s, "mtwin.dummy.file", "")

	var err error
	switch conf.Client {
	case ClientMqtt:
		conf.Mqtt, err = getMqttConfig(s)
	case ClientHub:
		conf.Hub, err = getHubConfig(s)
	}
	if err != nil {
		return nil, err
	}

	return conf, nil
}

func getMqttConfig(s Store) (*mqtt.Config, error) {
	conf := &mqtt.Config{}

	broker, err := s.GetValue("mtwin.mqtt.broker").ToString()
	if err != nil || broker == "" {
		klog.Errorf("Failed to get broker url for mqtt client: %v", err)
		return nil, fmt.Errorf("mtwin.mqtt.broker is required")
	}
	conf.Broker = broker

	id, err := s.GetValue("mtwin.id").ToString()
	if err != nil || id == "" {
		klog.Warningf("Failed to get device id: %v", err)
		return nil, fmt.Errorf("mtwin.id is required")
	}
	conf.DeviceID = id
	conf.ModuleID = getString(s, "mtwin.module-id", "mtwin")

	conf.Username = getString(s, "mtwin.mqtt.user", "")
	conf.Password = getString(s, "mtwin.mqtt.passwd", "")

	qos := getInt(s, "mtwin.mqtt.qos", 1)
	if qos < 0 || qos > 1 {
		klog.Warningf("mtwin.mqtt.qos %d not supported, use 1", qos)
		qos = 1
	}
	conf.QOS = byte(qos)
	conf.KeepAlive = time.Duration(getInt(s, "mtwin.mqtt.keep-alive-interval", 120)) * time.Second
	conf.Timeout = time.Duration(getInt(s, "mtwin.mqtt.timeout", 30)) * time.Second

	return conf, nil
}

func getHubConfig(s Store) (*hub.Config, error) {
	conf := &hub.Config{}

	url, err := s.GetValue("mtwin.hub.broker").ToString()
	if err != nil || url == "" {
		klog.Errorf("Failed to get broker url for hub client: %v", err)
		return nil, fmt.Errorf("mtwin.hub.broker is required")
	}
	conf.URL = url

	id, err := s.GetValue("mtwin.id").ToString()
	if err != nil || id == "" {
		klog.Warningf("Failed to get client id: %v", err)
		return nil, fmt.Errorf("mtwin.id is required")
	}
	conf.ClientID = id

	conf.User = getString(s, "mtwin.hub.user", "")
	conf.Passwd = getString(s, "mtwin.hub.passwd", "")
	conf.CertFilePath = getString(s, "mtwin.hub.certfile", "")
	conf.KeyFilePath = getString(s, "mtwin.hub.keyfile", "")
	conf.KeepAliveInterval = getInt(s, "mtwin.hub.keep-alive-interval", 120)
	conf.PingTimeout = getInt(s, "mtwin.hub.ping-timeout", 120)
	conf.QOS = getInt(s, "mtwin.hub.qos", 2)
	conf.Retain = getBool(s, "mtwin.hub.retain", false)
	conf.MessageCacheDepth = uint(getInt(s, "mtwin.hub.session-queue-size", 100))
	conf.Timeout = time.Duration(getInt(s, "mtwin.hub.timeout", 30)) * time.Second

	return conf, nil
}

// NewModuleClient creates the module client selected by conf.
func NewModuleClient(conf *ModuleConfig) (client.ModuleClient, error) {
	switch conf.Client {
	case ClientMqtt:
		return mqtt.NewClient(conf.Mqtt), nil
	case ClientHub:
		return hub.NewClient(conf.Hub)
	default:
		var opts []dummy.Option
		if conf.DummyFile != "" {
			opts = append(opts, dummy.WithTwinFile(conf.DummyFile))
		}
		return dummy.New(opts...), nil
	}
}
