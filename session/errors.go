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
	"errors"
	"fmt"
)

var (
	// Disconnected is delivered to every pending request when the
	// transport goes away.
	Disconnected = errors.New("session disconnected")

	// Expired means the server rejected a reconnect handshake.  A
	// session in this state never reconnects on its own.
	Expired = errors.New("session expired")

	// NotConnected is returned by operations that require a live
	// transport when reconnection isn't possible.
	NotConnected = errors.New("session not connected")
)

// Error is a server-reported failure as it appears on the wire.
//
// A response frame carries one tied to a correlation id; an errors
// frame carries a map of them keyed by output name.
type Error struct {
	Message string   `json:"message"`
	Call    []string `json:"call"`
	Type    []string `json:"type,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ProtocolError reports a frame that failed structural validation.
// Such frames are dropped (and logged), never fatal.
type ProtocolError struct {
	Reason string
	Frame  []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s in frame %s", e.Reason, e.Frame)
}
