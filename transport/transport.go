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

// Package transport provides message-oriented duplex connections for
// a session: WebSocket, MQTT, and an in-memory pipe for tests.
package transport

import (
	"context"
	"errors"
)

// Closed is returned by Read and Write after a transport closes.
var Closed = errors.New("transport closed")

// Transport is one message-oriented duplex connection.  A session
// owns exactly one live Transport at a time.
type Transport interface {
	// Read blocks until the next in-bound message arrives, the
	// transport closes, or ctx is done.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one out-bound message.
	Write(ctx context.Context, msg []byte) error

	// Close tears down the connection.  Blocked Reads return an
	// error.
	Close() error
}

// Dialer opens Transports.  A session redials through the same
// Dialer when it reconnects.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}
