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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind string
	}{
		{
			name: "config",
			raw:  `{"config":{"workerId":"w1","sessionId":"s1"}}`,
			kind: "config",
		},
		{
			name: "values",
			raw:  `{"values":{"x":1}}`,
			kind: "update",
		},
		{
			name: "errors",
			raw:  `{"errors":{"x":{"message":"bad","call":[]}}}`,
			kind: "update",
		},
		{
			name: "progress",
			raw:  `{"progress":{"type":"open","id":"p1","style":"notification"}}`,
			kind: "progress",
		},
		{
			name: "response",
			raw:  `{"response":{"tag":3,"value":"ok"}}`,
			kind: "response",
		},
		{
			name: "custom",
			raw:  `{"custom":{"my-type":{"n":1}}}`,
			kind: "custom",
		},
		{
			name: "bare custom type tag",
			raw:  `{"my-type":{"n":1}}`,
			kind: "custom",
		},
		{
			name: "pong",
			raw:  `{"pong":1}`,
			kind: "pong",
		},
		{
			name: "not expired",
			raw:  `{"expired":false}`,
			kind: "pong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, f.Kind())
		})
	}
}

func TestDecodeFramePriority(t *testing.T) {
	// A bogus frame carrying several discriminators classifies by
	// the highest-priority one.
	f, err := DecodeFrame([]byte(`{"response":{"tag":1},"values":{"x":1},"config":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "config", f.Kind())

	f, err = DecodeFrame([]byte(`{"response":{"tag":1},"values":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "update", f.Kind())
}

func TestDecodeFrameExpired(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"expired":true}`))
	require.NoError(t, err)
	require.NotNil(t, f.Config)
	assert.True(t, f.Config.SessionExpired)
}

func TestDecodeFrameMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`{}`,
		`{"progress":{"type":"explode","id":"p"}}`,
		`{"config":[1,2,3]}`,
	} {
		_, err := DecodeFrame([]byte(raw))
		require.Error(t, err, "raw: %s", raw)
		var pe *ProtocolError
		assert.ErrorAs(t, err, &pe)
	}
}

func TestDecodeResponseError(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"response":{"tag":7,"error":{"message":"boom","call":["f","g"],"type":["shiny"]}}}`))
	require.NoError(t, err)
	require.NotNil(t, f.Response)
	require.NotNil(t, f.Response.Error)
	assert.Equal(t, 7, f.Response.Tag)
	assert.Equal(t, "boom", f.Response.Error.Message)
	assert.Equal(t, []string{"f", "g"}, f.Response.Error.Call)
	assert.Equal(t, []string{"shiny"}, f.Response.Error.Type)
}

func TestRequestWire(t *testing.T) {
	js, err := json.Marshal(&Request{
		Method: "uploadEnd",
		Args:   []interface{}{"job1", "file"},
		Tag:    5,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"uploadEnd","args":["job1","file"],"tag":5}`, string(js))
}

func TestAllowReconnectJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want AllowReconnect
		bad  bool
	}{
		{raw: `true`, want: ReconnectAllowed},
		{raw: `false`, want: ReconnectNever},
		{raw: `"force"`, want: ReconnectForce},
		{raw: `"allowed"`, want: ReconnectAllowed},
		{raw: `"sometimes"`, bad: true},
		{raw: `42`, bad: true},
	}

	for _, tt := range tests {
		var a AllowReconnect
		err := json.Unmarshal([]byte(tt.raw), &a)
		if tt.bad {
			assert.Error(t, err, "raw: %s", tt.raw)
			continue
		}
		require.NoError(t, err, "raw: %s", tt.raw)
		assert.Equal(t, tt.want, a)
	}
}
