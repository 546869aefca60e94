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
)

// Frame is one decoded in-bound message.
//
// At most one of the pointer fields has a value.  DecodeFrame checks
// the discriminating top-level keys in a fixed priority order, so a
// frame that (bogusly) carries several of them is classified by the
// highest-priority key it carries.
type Frame struct {
	// Config is the handshake acknowledgement.
	Config *ConfigFrame `json:"config,omitempty"`

	// Update carries pushed values and errors keyed by output name.
	Update *UpdateFrame `json:"-"`

	// Progress is a progress or notification event.
	Progress *ProgressFrame `json:"progress,omitempty"`

	// Response answers an out-bound request by correlation id.
	Response *ResponseFrame `json:"response,omitempty"`

	// Custom holds application messages keyed by type tag.
	Custom map[string]json.RawMessage `json:"custom,omitempty"`

	// pong marks a recognized frame with nothing to route, like a
	// keepalive answer.
	pong bool
}

// Kind names the variant, for diagnostics.
func (f *Frame) Kind() string {
	switch {
	case f.Config != nil:
		return "config"
	case f.Update != nil:
		return "update"
	case f.Progress != nil:
		return "progress"
	case f.Response != nil:
		return "response"
	case f.Custom != nil:
		return "custom"
	case f.pong:
		return "pong"
	}
	return "unrecognized"
}

// ConfigFrame is the server's answer to a connect or reconnect
// handshake.
type ConfigFrame struct {
	WorkerId  string `json:"workerId,omitempty"`
	SessionId string `json:"sessionId,omitempty"`
	User      string `json:"user,omitempty"`

	// SessionExpired means the server refused to resume the old
	// session.  The session gives up reconnecting when it sees
	// this.
	SessionExpired bool `json:"sessionExpired,omitempty"`
}

// UpdateFrame carries pushed binding updates.  Values and Errors are
// keyed by output name; an output appears in at most one of the two.
type UpdateFrame struct {
	Errors map[string]*Error      `json:"errors,omitempty"`
	Values map[string]interface{} `json:"values,omitempty"`
}

// ProgressFrame is a progress or notification event.
//
// Kind is one of "open", "update", "close", or "binding".  Style
// discriminates between the "notification" presentation and the
// legacy "old" one; the two are mutually exclusive for a given id.
type ProgressFrame struct {
	Kind    string                 `json:"type"`
	Id      string                 `json:"id"`
	Style   string                 `json:"style,omitempty"`
	Content map[string]interface{} `json:"content,omitempty"`
}

// ResponseFrame answers a request.  Exactly one of Value and Error
// should be set.
type ResponseFrame struct {
	Tag   int             `json:"tag"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// progressKinds is the closed set of ProgressFrame.Kind values.
var progressKinds = map[string]bool{
	"open":    true,
	"update":  true,
	"close":   true,
	"binding": true,
}

// DecodeFrame parses a raw frame into its tagged variant.
//
// The discriminating keys are checked in the fixed priority order
// config, expired, pong, errors/values, progress, response, custom.
// A frame with none of them classifies its remaining top-level keys
// as custom type tags; an empty frame, or one whose discriminated
// payload has the wrong shape, yields a ProtocolError.
func DecodeFrame(raw []byte) (*Frame, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ProtocolError{
			Reason: err.Error(),
			Frame:  raw,
		}
	}

	f := &Frame{}

	if js, have := probe["config"]; have {
		var cfg ConfigFrame
		if err := json.Unmarshal(js, &cfg); err != nil {
			return nil, badFrame(raw, "config", err)
		}
		f.Config = &cfg
		return f, nil
	}

	if js, have := probe["expired"]; have {
		// Alternate expiry signal: {"expired":true}.
		var expired bool
		if err := json.Unmarshal(js, &expired); err != nil {
			return nil, badFrame(raw, "expired", err)
		}
		if expired {
			f.Config = &ConfigFrame{SessionExpired: true}
		} else {
			f.pong = true
		}
		return f, nil
	}

	if _, have := probe["pong"]; have {
		// Keepalive answer.  Nothing to route.
		f.pong = true
		return f, nil
	}

	_, haveErrors := probe["errors"]
	_, haveValues := probe["values"]
	if haveErrors || haveValues {
		var u UpdateFrame
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, badFrame(raw, "update", err)
		}
		f.Update = &u
		return f, nil
	}

	if js, have := probe["progress"]; have {
		var p ProgressFrame
		if err := json.Unmarshal(js, &p); err != nil {
			return nil, badFrame(raw, "progress", err)
		}
		if !progressKinds[p.Kind] {
			return nil, &ProtocolError{
				Reason: fmt.Sprintf("unknown progress type '%s'", p.Kind),
				Frame:  raw,
			}
		}
		f.Progress = &p
		return f, nil
	}

	if js, have := probe["response"]; have {
		var r ResponseFrame
		if err := json.Unmarshal(js, &r); err != nil {
			return nil, badFrame(raw, "response", err)
		}
		f.Response = &r
		return f, nil
	}

	if js, have := probe["custom"]; have {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(js, &m); err != nil {
			return nil, badFrame(raw, "custom", err)
		}
		f.Custom = m
		return f, nil
	}

	// Anything else is an application message: each remaining
	// top-level key is a type tag for the custom-handler path.
	if 0 < len(probe) {
		f.Custom = probe
		return f, nil
	}

	return nil, &ProtocolError{
		Reason: "unrecognized frame",
		Frame:  raw,
	}
}

func badFrame(raw []byte, kind string, err error) error {
	return &ProtocolError{
		Reason: fmt.Sprintf("bad %s frame: %s", kind, err),
		Frame:  raw,
	}
}

// Request is an out-bound method call.  Tag is the correlation id
// that the eventual ResponseFrame will carry back.
type Request struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
	Tag    int           `json:"tag"`
}

// InputUpdate is an out-bound batch of changed input values.
type InputUpdate struct {
	Data map[string]interface{} `json:"data"`
}

// Handshake opens (or resumes) a session on a freshly dialed
// transport.  SessionId is set only on reconnect.
type Handshake struct {
	Method    string                 `json:"method"`
	Data      map[string]interface{} `json:"data,omitempty"`
	WorkerId  string                 `json:"workerId,omitempty"`
	SessionId string                 `json:"sessionId,omitempty"`
}
