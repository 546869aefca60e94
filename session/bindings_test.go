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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAdapter records everything it's given.
type testAdapter struct {
	id string

	sync.Mutex
	values []interface{}
	errs   []*Error
}

func (a *testAdapter) Receive(value interface{}) {
	a.Lock()
	a.values = append(a.values, value)
	a.Unlock()
}

func (a *testAdapter) ShowError(err *Error) {
	a.Lock()
	a.errs = append(a.errs, err)
	a.Unlock()
}

func (a *testAdapter) Id() string {
	return a.id
}

func (a *testAdapter) Values() []interface{} {
	a.Lock()
	defer a.Unlock()
	return append([]interface{}{}, a.values...)
}

func (a *testAdapter) Errors() []*Error {
	a.Lock()
	defer a.Unlock()
	return append([]*Error{}, a.errs...)
}

func TestBindDeliversCachedValue(t *testing.T) {
	bs := NewBindings()

	bs.SetValue("histogram", 42)

	a := &testAdapter{id: "histogram"}
	bs.Bind("histogram", a)

	// No waiting for the next frame.
	require.Equal(t, []interface{}{42}, a.Values())
}

func TestBindDeliversCachedError(t *testing.T) {
	bs := NewBindings()

	bs.SetError("histogram", &Error{Message: "broken"})

	a := &testAdapter{id: "histogram"}
	bs.Bind("histogram", a)

	require.Len(t, a.Errors(), 1)
	assert.Equal(t, "broken", a.Errors()[0].Message)
	assert.Empty(t, a.Values())
}

func TestValueClearsCachedError(t *testing.T) {
	bs := NewBindings()

	bs.SetError("histogram", &Error{Message: "broken"})
	bs.SetValue("histogram", 1)

	a := &testAdapter{id: "histogram"}
	bs.Bind("histogram", a)

	assert.Empty(t, a.Errors())
	assert.Equal(t, []interface{}{1}, a.Values())
}

func TestUnbindRemovesExactlyOne(t *testing.T) {
	bs := NewBindings()

	a := &testAdapter{id: "x"}
	bs.Bind("x", a)
	bs.Bind("x", a) // duplicate registration

	assert.True(t, bs.Unbind("x", a))

	bs.SetValue("x", 1)
	assert.Equal(t, []interface{}{1}, a.Values(), "one registration should survive")

	assert.True(t, bs.Unbind("x", a))
	assert.False(t, bs.Unbind("x", a))
}

func TestUnbindKeepsValueCache(t *testing.T) {
	bs := NewBindings()

	a := &testAdapter{id: "x"}
	bs.Bind("x", a)
	bs.SetValue("x", "tacos")
	bs.Unbind("x", a)

	// A future rebind still sees the last value.
	b := &testAdapter{id: "x"}
	bs.Bind("x", b)
	assert.Equal(t, []interface{}{"tacos"}, b.Values())
}

func TestScopeNarrowedDelivery(t *testing.T) {
	bs := NewBindings()

	var (
		exact  = &testAdapter{id: "tabs-plot-main"}
		scope  = &testAdapter{id: "tabs-plot"}
		deeper = &testAdapter{id: "tabs"}
		other  = &testAdapter{id: "tabs-table"}
	)
	bs.Bind(exact.Id(), exact)
	bs.Bind(scope.Id(), scope)
	bs.Bind(deeper.Id(), deeper)
	bs.Bind(other.Id(), other)

	bs.SetValue("tabs-plot-main", 9)

	assert.Equal(t, []interface{}{9}, exact.Values())
	assert.Equal(t, []interface{}{9}, scope.Values(), "prefix scope should match")
	assert.Equal(t, []interface{}{9}, deeper.Values(), "matching is arbitrary-depth")
	assert.Empty(t, other.Values(), "sibling scope must not match")

	// "tabs-plotter" is not inside the "tabs-plot" scope.
	bs.SetValue("tabs-plotter", 1)
	assert.Equal(t, []interface{}{9}, scope.Values())
}

func TestSeedDoesNotClobber(t *testing.T) {
	bs := NewBindings()

	bs.SetValue("x", "fresh")
	bs.Seed(map[string]interface{}{
		"x": "stale",
		"y": "restored",
	})

	v, _ := bs.Value("x")
	assert.Equal(t, "fresh", v)
	v, _ = bs.Value("y")
	assert.Equal(t, "restored", v)
}
