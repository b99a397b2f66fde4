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
	"crypto/tls"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog"
)

type pahoConn struct {
	cli MQTT.Client
	qos byte
}

// CheckClientToken waits for token and returns its error.
func CheckClientToken(token MQTT.Token) (bool, error) {
	if !token.WaitTimeout(TokenWaitTime) {
		return false, fmt.Errorf("timeout after %v", TokenWaitTime)
	}
	if token.Error() != nil {
		return false, token.Error()
	}
	return true, nil
}

// HubClientOptions builds the paho options of a module identity.
func HubClientOptions(conf *Config) *MQTT.ClientOptions {
	opts := MQTT.NewClientOptions().AddBroker(conf.Broker).SetClientID(conf.ClientID()).SetCleanSession(false)
	username := conf.Username
	if username == "" {
		username = conf.ClientID()
	}
	opts.SetUsername(username)
	if conf.Password != "" {
		opts.SetPassword(conf.Password)
	}
	if conf.KeepAlive > 0 {
		opts.SetKeepAlive(conf.KeepAlive)
	}
	tlsConfig := conf.TLS
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: true, ClientAuth: tls.NoClientCert}
	}
	opts.SetTLSConfig(tlsConfig)
	opts.SetAutoReconnect(true)
	return opts
}

func newPahoConn(conf *Config, onConnect func(), onLost func(error)) *pahoConn {
	opts := HubClientOptions(conf)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		klog.Infof("client %s connected to %s", conf.ClientID(), conf.Broker)
		onConnect()
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		onLost(err)
	})

	return &pahoConn{cli: MQTT.NewClient(opts), qos: conf.QOS}
}

func (p *pahoConn) Connect() error {
	_, err := CheckClientToken(p.cli.Connect())
	return err
}

func (p *pahoConn) Disconnect() {
	p.cli.Disconnect(250)
}

func (p *pahoConn) Publish(topic string, payload []byte) error {
	_, err := CheckClientToken(p.cli.Publish(topic, p.qos, false, payload))
	if err != nil {
		klog.Errorf("Error in pubMQTT with topic: %s, %v", topic, err)
	}
	return err
}

func (p *pahoConn) Subscribe(topic string, fn func(topic string, payload []byte)) error {
	_, err := CheckClientToken(p.cli.Subscribe(topic, p.qos, func(_ MQTT.Client, msg MQTT.Message) {
		fn(msg.Topic(), msg.Payload())
	}))
	return err
}
