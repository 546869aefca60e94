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

// Package schedule provides cancellable one-shot and cron-periodic
// tasks keyed by id.  A session uses it for reconnect timers (which
// must be cancellable before rescheduling) and keepalive pings.
package schedule

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

var (
	Exists   = errors.New("id exists")
	NotFound = errors.New("not found")
)

type entry struct {
	id  string
	at  time.Time
	ctl chan bool
}

// Tasks is a set of scheduled tasks, each with a cancel handle (its
// id).  At most one task per id.
type Tasks struct {
	// Verbose turns on logging.
	Verbose bool

	// Now is the clock used for cron schedules.  Defaults to
	// time.Now.  Tests can substitute their own.
	Now func() time.Time

	sync.Mutex

	tasks map[string]*entry
	ctl   chan bool
}

func NewTasks() *Tasks {
	return &Tasks{
		Now:   time.Now,
		tasks: make(map[string]*entry, 8),
		ctl:   make(chan bool),
	}
}

// Logf logs if ts.Verbose.
func (ts *Tasks) Logf(format string, args ...interface{}) {
	if !ts.Verbose {
		return
	}
	log.Printf(format, args...)
}

// After runs f once after d.  Returns Exists if a task with this id
// is already scheduled; Cancel the old one first to reschedule.
func (ts *Tasks) After(ctx context.Context, id string, d time.Duration, f func()) error {
	ts.Lock()
	defer ts.Unlock()

	if _, have := ts.tasks[id]; have {
		return Exists
	}

	te := &entry{
		id:  id,
		at:  ts.Now().Add(d),
		ctl: make(chan bool),
	}
	ts.tasks[id] = te

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			ts.rem(id, te)
		case <-te.ctl:
			// We only get here via a Cancel() call.
		case <-ts.ctl:
			ts.rem(id, te)
		case <-timer.C:
			ts.Logf("Tasks firing %s", id)
			ts.rem(id, te)
			f()
		}
	}()

	return nil
}

// Every runs f on a cron schedule until cancelled.  The expression
// uses the standard cron field syntax.
func (ts *Tasks) Every(ctx context.Context, id string, expr string, f func()) error {
	cron, err := cronexpr.Parse(expr)
	if err != nil {
		return err
	}

	ts.Lock()
	defer ts.Unlock()

	if _, have := ts.tasks[id]; have {
		return Exists
	}

	te := &entry{
		id:  id,
		ctl: make(chan bool),
	}
	ts.tasks[id] = te

	go func() {
		for {
			next := cron.Next(ts.Now())
			if next.IsZero() {
				ts.rem(id, te)
				return
			}
			timer := time.NewTimer(next.Sub(ts.Now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				ts.rem(id, te)
				return
			case <-te.ctl:
				timer.Stop()
				return
			case <-ts.ctl:
				timer.Stop()
				ts.rem(id, te)
				return
			case <-timer.C:
				ts.Logf("Tasks firing %s", id)
				f()
			}
		}
	}()

	return nil
}

// Cancel removes a scheduled task and reports whether it existed.  A
// cancelled task never fires.
func (ts *Tasks) Cancel(id string) bool {
	ts.Lock()
	defer ts.Unlock()

	te, have := ts.tasks[id]
	if !have {
		return false
	}

	delete(ts.tasks, id)
	close(te.ctl)

	return true
}

// Pending reports whether a task with the given id is scheduled.
func (ts *Tasks) Pending(id string) bool {
	ts.Lock()
	_, have := ts.tasks[id]
	ts.Unlock()
	return have
}

// Shutdown cancels everything.  Idempotent.
func (ts *Tasks) Shutdown() {
	ts.Lock()
	defer ts.Unlock()
	select {
	case <-ts.ctl:
	default:
		close(ts.ctl)
	}
}

// rem removes the entry for id if it's still te.  A replacement task
// scheduled under the same id after a Cancel is left alone.
func (ts *Tasks) rem(id string, te *entry) {
	ts.Lock()
	if cur, have := ts.tasks[id]; have && cur == te {
		delete(ts.tasks, id)
	}
	ts.Unlock()
}
