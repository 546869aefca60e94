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

package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterFires(t *testing.T) {
	ts := NewTasks()
	defer ts.Shutdown()

	fired := make(chan bool, 1)
	if err := ts.After(context.Background(), "t0", 10*time.Millisecond, func() {
		fired <- true
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task never fired")
	}

	if ts.Pending("t0") {
		t.Fatal("fired task still pending")
	}
}

func TestAfterCancel(t *testing.T) {
	ts := NewTasks()
	defer ts.Shutdown()

	var fired int32
	if err := ts.After(context.Background(), "t0", 20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	}); err != nil {
		t.Fatal(err)
	}

	if !ts.Cancel("t0") {
		t.Fatal("Cancel should have found t0")
	}

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("cancelled task fired %d times", n)
	}

	if ts.Cancel("t0") {
		t.Fatal("second Cancel should find nothing")
	}
}

func TestAfterExists(t *testing.T) {
	ts := NewTasks()
	defer ts.Shutdown()

	f := func() {}
	if err := ts.After(context.Background(), "t0", time.Minute, f); err != nil {
		t.Fatal(err)
	}
	if err := ts.After(context.Background(), "t0", time.Minute, f); err != Exists {
		t.Fatalf("wanted Exists; got %v", err)
	}

	// Cancel-then-reschedule is the supported way to replace a
	// timer, and at most one is ever pending.
	ts.Cancel("t0")
	if err := ts.After(context.Background(), "t0", time.Minute, f); err != nil {
		t.Fatal(err)
	}
	if !ts.Pending("t0") {
		t.Fatal("replacement not pending")
	}
}

func TestEveryCron(t *testing.T) {
	t.Log("This test takes a couple of seconds.")

	ts := NewTasks()
	defer ts.Shutdown()

	// Six fields: every second.
	fired := make(chan bool, 4)
	if err := ts.Every(context.Background(), "ping", "* * * * * *", func() {
		fired <- true
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("cron task never fired")
	}

	ts.Cancel("ping")
}

func TestEveryBadExpression(t *testing.T) {
	ts := NewTasks()
	defer ts.Shutdown()

	if err := ts.Every(context.Background(), "bad", "not a cron line", func() {}); err == nil {
		t.Fatal("wanted a parse error")
	}
}

func TestContextCancelsTasks(t *testing.T) {
	ts := NewTasks()
	defer ts.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())

	var fired int32
	if err := ts.After(ctx, "t0", 30*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	}); err != nil {
		t.Fatal(err)
	}

	cancel()

	time.Sleep(80 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("task fired %d times after ctx cancel", n)
	}
	if ts.Pending("t0") {
		t.Fatal("task still pending after ctx cancel")
	}
}
