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
	"log"
	"strings"
	"sync"
)

// Adapter is the capability the session knows a UI binding by.  The
// session never renders anything itself; it hands values and errors
// to Adapters.
type Adapter interface {
	// Receive is called with each pushed (or cached) value.
	Receive(value interface{})

	// ShowError is called with a server-reported failure for this
	// output.
	ShowError(err *Error)

	// Id returns the output name the adapter was built for.
	Id() string
}

// Bindings tracks which adapters are subscribed to which output
// names, together with the last value and last error seen per name.
//
// The caches outlive the adapters: unbinding the last adapter for a
// name does not purge its cached value, so a later rebind still sees
// it.
type Bindings struct {
	// Verbose turns on logging.
	Verbose bool

	mu     sync.Mutex
	byId   map[string][]Adapter
	values map[string]interface{}
	errors map[string]*Error
}

func NewBindings() *Bindings {
	return &Bindings{
		byId:   make(map[string][]Adapter, 8),
		values: make(map[string]interface{}, 8),
		errors: make(map[string]*Error, 8),
	}
}

// Logf logs if bs.Verbose.
func (bs *Bindings) Logf(format string, args ...interface{}) {
	if !bs.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Bind registers the adapter under id and returns it.
//
// If a value (or error) is already cached for id, it is delivered to
// the new adapter immediately, so late-joining UI doesn't sit in a
// "no data" state waiting for the next push.
func (bs *Bindings) Bind(id string, a Adapter) Adapter {
	bs.mu.Lock()
	bs.byId[id] = append(bs.byId[id], a)
	v, haveValue := bs.values[id]
	e, haveError := bs.errors[id]
	bs.mu.Unlock()

	bs.Logf("Bindings.Bind %s (cached value: %v)", id, haveValue)

	if haveError {
		a.ShowError(e)
	} else if haveValue {
		a.Receive(v)
	}

	return a
}

// Unbind removes exactly one registration of the given adapter from
// id and reports whether anything was removed.  Duplicate
// registrations survive one Unbind each.
func (bs *Bindings) Unbind(id string, a Adapter) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	as := bs.byId[id]
	for i, x := range as {
		if x == a {
			bs.byId[id] = append(as[:i:i], as[i+1:]...)
			if len(bs.byId[id]) == 0 {
				delete(bs.byId, id)
			}
			return true
		}
	}
	return false
}

// SetValue caches a confirmed value for name, clears any cached error
// for it, and delivers it to every subscribed adapter.
func (bs *Bindings) SetValue(name string, value interface{}) {
	bs.mu.Lock()
	bs.values[name] = value
	delete(bs.errors, name)
	as := bs.subscribers(name)
	bs.mu.Unlock()

	for _, a := range as {
		a.Receive(value)
	}
}

// SetError caches a server-reported failure for name and delivers it
// to every subscribed adapter.
func (bs *Bindings) SetError(name string, err *Error) {
	bs.mu.Lock()
	bs.errors[name] = err
	as := bs.subscribers(name)
	bs.mu.Unlock()

	for _, a := range as {
		a.ShowError(err)
	}
}

// Value returns the cached value for name, if any.
func (bs *Bindings) Value(name string) (interface{}, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	v, have := bs.values[name]
	return v, have
}

// Values returns a copy of the value cache (for snapshotting).
func (bs *Bindings) Values() map[string]interface{} {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	acc := make(map[string]interface{}, len(bs.values))
	for name, v := range bs.values {
		acc[name] = v
	}
	return acc
}

// Seed loads values into the cache without notifying anyone.  Used to
// restore a saved session snapshot before any adapters bind.
func (bs *Bindings) Seed(values map[string]interface{}) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for name, v := range values {
		if _, have := bs.values[name]; !have {
			bs.values[name] = v
		}
	}
}

// subscribers returns a snapshot of the adapters that should see an
// update for name: those bound to the exact name plus those bound to
// a broader scope of it.
//
// Scope matching is prefix-based with '-' as the segment separator,
// at arbitrary depth: an adapter bound to "tabs-plot" also receives
// "tabs-plot-main" and "tabs-plot-main-x".  The snapshot keeps a
// nested Bind/Unbind from a Receive callback from corrupting the
// iteration.
//
// Callers must hold bs.mu.
func (bs *Bindings) subscribers(name string) []Adapter {
	var acc []Adapter
	for id, as := range bs.byId {
		if id == name || strings.HasPrefix(name, id+"-") {
			acc = append(acc, as...)
		}
	}
	return acc
}
