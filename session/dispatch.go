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
	"log"
	"sync"
)

// CustomHandler consumes one application message.  The payload is the
// raw JSON for the handler's type tag.
type CustomHandler func(payload json.RawMessage)

// Reevaluator is told which names changed after each applied update
// frame.  The cond package provides the real one.
type Reevaluator interface {
	Reevaluate(changed map[string]bool)
}

type customEntry struct {
	typ string
	fn  CustomHandler
}

// Dispatcher decodes in-bound frames and routes each to the right
// handler set.
//
// Routing is an ordered list, not map iteration: config first, then
// binding updates, then progress, then responses, then custom
// messages.  That order is what makes value updates visible before
// conditional re-evaluation and before custom handlers run.
type Dispatcher struct {
	// Verbose turns on logging.
	Verbose bool

	requests *Requests
	bindings *Bindings
	progress *progressRouter
	cond     Reevaluator

	// onConfig is the session's handshake hook.
	onConfig func(cfg *ConfigFrame)

	mu       sync.Mutex
	handlers []customEntry
}

func NewDispatcher(rs *Requests, bs *Bindings, sink ProgressSink, cond Reevaluator, onConfig func(*ConfigFrame)) *Dispatcher {
	return &Dispatcher{
		requests: rs,
		bindings: bs,
		progress: newProgressRouter(sink),
		cond:     cond,
		onConfig: onConfig,
	}
}

// Logf logs if d.Verbose.
func (d *Dispatcher) Logf(format string, args ...interface{}) {
	if !d.Verbose {
		return
	}
	log.Printf(format, args...)
}

// AddCustomHandler installs a handler for the given type tag.
// Handlers for a tag run in installation order.
func (d *Dispatcher) AddCustomHandler(typ string, h CustomHandler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, customEntry{typ: typ, fn: h})
	d.mu.Unlock()
}

// Dispatch decodes one raw frame and routes it.
//
// A malformed frame is dropped with a diagnostic and a ProtocolError
// return; it never panics and never desynchronizes later frames.
func (d *Dispatcher) Dispatch(raw []byte) error {
	f, err := DecodeFrame(raw)
	if err != nil {
		d.Logf("Dispatcher dropping frame: %s", err)
		return err
	}

	d.Logf("Dispatcher %s frame", f.Kind())

	switch {
	case f.Config != nil:
		if d.onConfig != nil {
			d.onConfig(f.Config)
		}

	case f.Update != nil:
		d.update(f.Update)

	case f.Progress != nil:
		d.progress.Verbose = d.Verbose
		d.progress.route(f.Progress)

	case f.Response != nil:
		d.respond(f.Response)

	case f.Custom != nil:
		d.custom(f.Custom)
	}

	return nil
}

// update applies a batch of pushed values and errors, then runs one
// conditional re-evaluation pass for the whole batch.
func (d *Dispatcher) update(u *UpdateFrame) {
	changed := make(map[string]bool, len(u.Values)+len(u.Errors))

	for name, err := range u.Errors {
		d.bindings.SetError(name, err)
	}

	for name, value := range u.Values {
		d.bindings.SetValue(name, value)
		changed[name] = true
	}

	// One recompute pass per frame, no matter how many fields it
	// carried.
	if d.cond != nil && 0 < len(changed) {
		d.cond.Reevaluate(changed)
	}
}

func (d *Dispatcher) respond(r *ResponseFrame) {
	if r.Error != nil {
		d.requests.Reject(r.Tag, r.Error)
		return
	}

	var value interface{}
	if 0 < len(r.Value) {
		if err := json.Unmarshal(r.Value, &value); err != nil {
			d.Logf("Dispatcher bad response value for tag %d: %s", r.Tag, err)
			d.requests.Reject(r.Tag, &ProtocolError{
				Reason: err.Error(),
				Frame:  r.Value,
			})
			return
		}
	}
	d.requests.Resolve(r.Tag, value)
}

// custom routes application messages to externally-installed
// handlers.  Unknown types are dropped with a diagnostic, never
// fatal.
func (d *Dispatcher) custom(msgs map[string]json.RawMessage) {
	d.mu.Lock()
	handlers := make([]customEntry, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.Unlock()

	for typ, payload := range msgs {
		routed := false
		for _, h := range handlers {
			if h.typ == typ {
				h.fn(payload)
				routed = true
			}
		}
		if !routed {
			d.Logf("Dispatcher dropping custom message type '%s'", typ)
		}
	}
}
