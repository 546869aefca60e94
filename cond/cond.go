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

// Package cond re-evaluates boolean show/hide expressions against
// current session values after each update batch.
//
// Expressions are ECMAScript predicates compiled once with Goja.  An
// expression reads session state via the function value(name), for
// example:
//
//	value("plotType") == "histogram" && value("bins") > 5
package cond

import (
	"fmt"
	"log"
	"sync"

	"github.com/dop251/goja"
)

// Scope provides current input/output values by name.  The session's
// value cache implements this.
type Scope interface {
	Lookup(name string) (interface{}, bool)
}

// Dependent is a UI element whose visibility an expression controls.
type Dependent interface {
	SetVisible(visible bool)
}

type entry struct {
	src  string
	prog *goja.Program

	// deps is the expression's declared dependency set.  When nil,
	// dependency tracking is unavailable for this expression and
	// it is re-run on every pass: correct but slower.
	deps map[string]bool

	dependent Dependent
}

// Engine holds compiled expressions and re-runs the affected ones
// when values change.
type Engine struct {
	// Verbose turns on logging.
	Verbose bool

	scope Scope

	mu      sync.Mutex
	vm      *goja.Runtime
	entries []*entry
}

func NewEngine(scope Scope) *Engine {
	e := &Engine{
		scope: scope,
		vm:    goja.New(),
	}
	e.vm.Set("value", func(name string) goja.Value {
		v, have := e.scope.Lookup(name)
		if !have {
			return goja.Null()
		}
		return e.vm.ToValue(v)
	})
	return e
}

// Logf logs if e.Verbose.
func (e *Engine) Logf(format string, args ...interface{}) {
	if !e.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Register compiles the expression, evaluates it once so the element
// starts in the right state, and keeps it for future Reevaluate
// passes.
//
// deps declares which value names the expression reads.  Pass nil if
// that isn't known; the engine then falls back to re-running the
// expression on every pass.
func (e *Engine) Register(expr string, deps []string, d Dependent) error {
	prog, err := goja.Compile(expr, "("+expr+")", true)
	if err != nil {
		return fmt.Errorf("bad conditional expression '%s': %v", expr, err)
	}

	en := &entry{
		src:       expr,
		prog:      prog,
		dependent: d,
	}
	if deps != nil {
		en.deps = make(map[string]bool, len(deps))
		for _, name := range deps {
			en.deps[name] = true
		}
	}

	e.mu.Lock()
	e.entries = append(e.entries, en)
	visible, evalErr := e.eval(en)
	e.mu.Unlock()

	if evalErr != nil {
		e.Logf("Engine.Register initial eval of '%s': %v", expr, evalErr)
		return nil
	}
	d.SetVisible(visible)

	return nil
}

// Reevaluate re-runs every expression whose dependency set intersects
// changed (plus every expression with no declared dependencies) and
// notifies its dependent.
//
// An expression that fails at runtime is logged and its element's
// visibility left as it was.
func (e *Engine) Reevaluate(changed map[string]bool) {
	e.mu.Lock()
	entries := make([]*entry, len(e.entries))
	copy(entries, e.entries)
	e.mu.Unlock()

	for _, en := range entries {
		if en.deps != nil && !intersects(en.deps, changed) {
			continue
		}

		e.mu.Lock()
		visible, err := e.eval(en)
		e.mu.Unlock()

		if err != nil {
			e.Logf("Engine eval '%s': %v", en.src, err)
			continue
		}
		en.dependent.SetVisible(visible)
	}
}

// eval runs one compiled expression.  Callers must hold e.mu: the
// Goja runtime is not safe for concurrent use.
func (e *Engine) eval(en *entry) (bool, error) {
	v, err := e.vm.RunProgram(en.prog)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

func intersects(deps, changed map[string]bool) bool {
	// Iterate the smaller set.
	if len(changed) < len(deps) {
		deps, changed = changed, deps
	}
	for name := range deps {
		if changed[name] {
			return true
		}
	}
	return false
}
