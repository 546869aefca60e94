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
	"sort"
	"sync"
	"time"
)

// PendingRequest is an out-bound call awaiting its response.
type PendingRequest struct {
	// Id is the correlation id ("tag" on the wire).
	Id int

	OnSuccess func(value interface{})
	OnError   func(err error)

	CreatedAt time.Time

	// Aux is opaque caller data carried alongside the request.
	Aux interface{}
}

// Requests allocates correlation ids and holds the pending callbacks
// until a matching response arrives or the session disconnects.
//
// Ids are a monotonically increasing integer per session, starting at
// 0, never reused.
type Requests struct {
	// Verbose turns on logging.
	Verbose bool

	mu      sync.Mutex
	next    int
	pending map[int]*PendingRequest
}

func NewRequests() *Requests {
	return &Requests{
		pending: make(map[int]*PendingRequest, 8),
	}
}

// Logf logs if rs.Verbose.
func (rs *Requests) Logf(format string, args ...interface{}) {
	if !rs.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Make registers callbacks for a new request and returns its
// correlation id.  Make never sends anything; the caller writes the
// request frame.
func (rs *Requests) Make(onSuccess func(interface{}), onError func(error), aux interface{}) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	id := rs.next
	rs.next++

	rs.pending[id] = &PendingRequest{
		Id:        id,
		OnSuccess: onSuccess,
		OnError:   onError,
		CreatedAt: time.Now().UTC(),
		Aux:       aux,
	}

	return id
}

// Resolve delivers a success payload to the request with the given
// id.  An unknown id (duplicate or already-cancelled response) is a
// no-op with a diagnostic; it never panics.
func (rs *Requests) Resolve(id int, value interface{}) bool {
	pr := rs.take(id)
	if pr == nil {
		rs.Logf("Requests.Resolve unknown id %d", id)
		return false
	}
	if pr.OnSuccess != nil {
		pr.OnSuccess(value)
	}
	return true
}

// Reject delivers an error to the request with the given id.  Unknown
// ids are a no-op with a diagnostic.
func (rs *Requests) Reject(id int, err error) bool {
	pr := rs.take(id)
	if pr == nil {
		rs.Logf("Requests.Reject unknown id %d", id)
		return false
	}
	if pr.OnError != nil {
		pr.OnError(err)
	}
	return true
}

// CancelAll invokes each pending OnError exactly once with the given
// error and empties the registry.  Used on disconnect and on session
// teardown.  Returns the number of requests cancelled.
//
// The pending set is snapshotted before any callback runs, so a
// callback that makes a new request doesn't corrupt the iteration
// (and the new request survives).
func (rs *Requests) CancelAll(err error) int {
	rs.mu.Lock()
	cancelled := make([]*PendingRequest, 0, len(rs.pending))
	for _, pr := range rs.pending {
		cancelled = append(cancelled, pr)
	}
	rs.pending = make(map[int]*PendingRequest, 8)
	rs.mu.Unlock()

	// Oldest first, so cancellations arrive in submission order.
	sort.Slice(cancelled, func(i, j int) bool {
		return cancelled[i].Id < cancelled[j].Id
	})

	for _, pr := range cancelled {
		if pr.OnError != nil {
			pr.OnError(err)
		}
	}

	return len(cancelled)
}

// Len reports the number of pending requests.
func (rs *Requests) Len() int {
	rs.mu.Lock()
	n := len(rs.pending)
	rs.mu.Unlock()
	return n
}

// take removes and returns the pending request with the given id.
func (rs *Requests) take(id int) *PendingRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	pr, have := rs.pending[id]
	if !have {
		return nil
	}
	delete(rs.pending, id)
	return pr
}
