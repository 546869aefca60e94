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

package session

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/google/uuid"
	"github.com/jsccast/yaml"
)

// AllowReconnect says what to do when the transport drops.
type AllowReconnect string

const (
	// ReconnectNever gives up on the first disconnect.
	ReconnectNever AllowReconnect = "never"

	// ReconnectAllowed schedules reconnect attempts with backoff.
	ReconnectAllowed AllowReconnect = "allowed"

	// ReconnectForce bypasses backoff for one immediate attempt,
	// then behaves like ReconnectAllowed.
	ReconnectForce AllowReconnect = "force"
)

// UnmarshalJSON accepts a boolean (legacy clients send true/false) or
// one of the string forms, including "force".
func (a *AllowReconnect) UnmarshalJSON(bs []byte) error {
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return err
	}
	switch v := x.(type) {
	case bool:
		if v {
			*a = ReconnectAllowed
		} else {
			*a = ReconnectNever
		}
		return nil
	case string:
		switch AllowReconnect(v) {
		case ReconnectNever, ReconnectAllowed, ReconnectForce:
			*a = AllowReconnect(v)
			return nil
		}
	}
	return fmt.Errorf("bad allowReconnect value %s", bs)
}

// Config is a session's static configuration, usually read from a
// YAML file.
type Config struct {
	// URL is where the primary (WebSocket) transport dials.
	URL string `json:"url" yaml:"url"`

	// WorkerId identifies this client across reconnects.  When
	// empty, a fresh UUID is assigned.
	WorkerId string `json:"workerId,omitempty" yaml:"workerId,omitempty"`

	// AllowReconnect defaults to ReconnectAllowed.
	AllowReconnect AllowReconnect `json:"allowReconnect,omitempty" yaml:"allowReconnect,omitempty"`

	// BackoffInitial, BackoffMax, and BackoffFactor tune the
	// reconnect delay sequence.  The durations are strings like
	// "500ms".
	BackoffInitial string  `json:"backoffInitial,omitempty" yaml:"backoffInitial,omitempty"`
	BackoffMax     string  `json:"backoffMax,omitempty" yaml:"backoffMax,omitempty"`
	BackoffFactor  float64 `json:"backoffFactor,omitempty" yaml:"backoffFactor,omitempty"`

	// KeepAlive is an optional cron expression for periodic ping
	// frames.
	KeepAlive string `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`

	// SnapshotFile, when given, is a bbolt file that stores
	// last-known values so a restarted client can restore its UI.
	SnapshotFile string `json:"snapshotFile,omitempty" yaml:"snapshotFile,omitempty"`
}

// LoadConfig reads a YAML Config from a file.
func LoadConfig(filename string) (*Config, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var conf Config
	if err = yaml.Unmarshal(bs, &conf); err != nil {
		return nil, err
	}
	if err = conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate fills in defaults and checks what can be checked without
// any IO.
func (conf *Config) Validate() error {
	if conf.URL == "" {
		return fmt.Errorf("config needs a url")
	}
	if conf.WorkerId == "" {
		conf.WorkerId = uuid.NewString()
	}
	switch conf.AllowReconnect {
	case "":
		conf.AllowReconnect = ReconnectAllowed
	case ReconnectNever, ReconnectAllowed, ReconnectForce:
	default:
		return fmt.Errorf("bad allowReconnect '%s'", conf.AllowReconnect)
	}
	if _, err := conf.backoff(); err != nil {
		return err
	}
	return nil
}

// backoff builds the Backoff this config describes.
func (conf *Config) backoff() (*Backoff, error) {
	b := DefaultBackoff()
	if conf.BackoffInitial != "" {
		d, err := time.ParseDuration(conf.BackoffInitial)
		if err != nil {
			return nil, fmt.Errorf("bad backoffInitial: %v", err)
		}
		b.Initial = d
	}
	if conf.BackoffMax != "" {
		d, err := time.ParseDuration(conf.BackoffMax)
		if err != nil {
			return nil, fmt.Errorf("bad backoffMax: %v", err)
		}
		b.Max = d
	}
	if conf.BackoffFactor != 0 {
		b.Factor = conf.BackoffFactor
	}
	return b, nil
}
