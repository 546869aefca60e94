/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTDialer connects a session over an MQTT topic pair: the server
// pushes frames on SubTopic, and the client publishes on PubTopic.
type MQTTDialer struct {
	// Broker is the broker address ("tcp://host:1883").
	Broker   string
	ClientId string
	Username string
	Password string

	SubTopic string
	PubTopic string

	QoS byte

	// KeepAlive is the MQTT-level keep-alive interval.
	KeepAlive time.Duration

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint
}

func (d *MQTTDialer) Validate() error {
	if d.Broker == "" {
		return fmt.Errorf("MQTTDialer needs a broker")
	}
	if d.SubTopic == "" || d.PubTopic == "" {
		return fmt.Errorf("MQTTDialer needs both a sub topic and a pub topic")
	}
	return nil
}

func (d *MQTTDialer) Dial(ctx context.Context) (Transport, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.Broker)
	if d.ClientId != "" {
		opts.SetClientID(d.ClientId)
	}
	if d.Username != "" {
		opts.SetUsername(d.Username)
	}
	if d.Password != "" {
		opts.SetPassword(d.Password)
	}
	if 0 < d.KeepAlive {
		opts.SetKeepAlive(d.KeepAlive)
	}
	// The session does its own reconnect scheduling.
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	t := &mqttConn{
		client:   client,
		pubTopic: d.PubTopic,
		qos:      d.QoS,
		quiesce:  d.Quiesce,
		in:       make(chan []byte, 16),
		closed:   make(chan struct{}),
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case t.in <- msg.Payload():
		case <-t.closed:
		}
	}

	if token := client.Subscribe(d.SubTopic, d.QoS, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(d.Quiesce)
		return nil, token.Error()
	}

	return t, nil
}

type mqttConn struct {
	client   mqtt.Client
	pubTopic string
	qos      byte
	quiesce  uint

	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (t *mqttConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, Closed
	case msg := <-t.in:
		return msg, nil
	}
}

func (t *mqttConn) Write(ctx context.Context, msg []byte) error {
	select {
	case <-t.closed:
		return Closed
	default:
	}
	token := t.client.Publish(t.pubTopic, t.qos, false, msg)
	token.Wait()
	return token.Error()
}

func (t *mqttConn) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.client.Disconnect(t.quiesce)
	})
	return nil
}
