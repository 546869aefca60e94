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

// Package session is the client-resident session runtime: it owns the
// transport, correlates request/response pairs, routes pushed values
// to UI bindings, and reconnects with backoff after transient
// disconnects.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Comcast/tether/schedule"
	"github.com/Comcast/tether/snapshot"
	"github.com/Comcast/tether/transport"
)

// Task ids for the session's scheduled work.
const (
	reconnectTask = "reconnect"
	keepAliveTask = "keepalive"
)

// Session maintains one persistent bidirectional connection to a
// server.  One Session per process (or browser tab); a Session
// exclusively owns its registries and caches, and is the sole writer
// of the connected flag.
//
// The optional collaborator fields (Progress, Cond, Store, Errors,
// OnExpired) should be set before Connect.
type Session struct {
	// Verbose turns on logging.
	Verbose bool

	// Progress receives progress and notification frames.
	Progress ProgressSink

	// Cond is re-run once after each applied update batch.  The
	// cond package provides an implementation.
	Cond Reevaluator

	// Store, when non-nil, persists last-known values so a
	// restarted client can restore its UI.
	Store *snapshot.Store

	// Errors, when non-nil, receives asynchronous session errors.
	Errors chan error

	// OnExpired is called exactly once if the server rejects a
	// reconnect handshake.  The session is permanently down at
	// that point.
	OnExpired func()

	conf       *Config
	dialer     transport.Dialer
	backoff    *Backoff
	tasks      *schedule.Tasks
	requests   *Requests
	bindings   *Bindings
	dispatcher *Dispatcher

	mu sync.Mutex

	t   transport.Transport
	gen int

	connected  bool
	connecting bool
	expired    bool
	forced     bool

	workerId  string
	sessionId string

	// queue holds out-bound messages submitted while disconnected,
	// flushed FIFO after the next successful handshake.
	queue [][]byte

	// lastSent maps input name to the JSON of its last sent value,
	// so SendInput only ships what actually changed.
	lastSent map[string]string

	// inputs holds current input values for conditional-expression
	// lookup.
	inputs map[string]interface{}

	initialInputs map[string]interface{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession wires up a session but does not connect.
func NewSession(conf *Config, dialer transport.Dialer) (*Session, error) {
	if conf == nil {
		return nil, fmt.Errorf("no config given")
	}
	if dialer == nil {
		return nil, fmt.Errorf("no dialer given")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	b, err := conf.backoff()
	if err != nil {
		return nil, err
	}

	s := &Session{
		conf:     conf,
		dialer:   dialer,
		backoff:  b,
		tasks:    schedule.NewTasks(),
		requests: NewRequests(),
		bindings: NewBindings(),
		lastSent: make(map[string]string, 8),
		inputs:   make(map[string]interface{}, 8),
		workerId: conf.WorkerId,
	}

	s.dispatcher = NewDispatcher(
		s.requests,
		s.bindings,
		sessionSink{s},
		ReevaluatorFunc(s.afterUpdate),
		s.onConfig,
	)

	return s, nil
}

// Logf logs if s.Verbose.
func (s *Session) Logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	log.Printf(format, args...)
}

// err surfaces an asynchronous error.
func (s *Session) err(err error) {
	if s.Errors != nil {
		select {
		case s.Errors <- err:
		default:
			log.Printf("Session errors chan blocked: %s", err)
		}
	} else {
		log.Println(err)
	}
}

// Connect opens a transport and sends the initial handshake carrying
// initialInputs.  The session counts as connected once the server's
// config frame arrives.
func (s *Session) Connect(ctx context.Context, initialInputs map[string]interface{}) error {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Expired
	}
	if s.connected || s.connecting {
		s.mu.Unlock()
		return fmt.Errorf("session already connected")
	}
	s.connecting = true
	s.initialInputs = initialInputs
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}
	s.mu.Unlock()

	s.propagateVerbose()

	// Seed the value cache from a saved snapshot so late bindings
	// see last-known values before any fresh push.
	if vals, err := s.Store.Restore(ctx, s.workerId); err != nil {
		s.err(fmt.Errorf("snapshot restore: %v", err))
	} else if vals != nil {
		s.bindings.Seed(vals)
	}

	return s.dial(ctx, false)
}

// Reconnect makes one reconnection attempt now.  It is a no-op when
// an attempt is already in flight and an error when the session has
// expired or Connect has never run.  A failed attempt advances the
// backoff and reschedules.
func (s *Session) Reconnect() error {
	// A manual reconnect supersedes any scheduled one.
	s.tasks.Cancel(reconnectTask)

	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Expired
	}
	if s.connected || s.connecting {
		s.mu.Unlock()
		return nil
	}
	if s.ctx == nil {
		// Connect has never run.
		s.mu.Unlock()
		return NotConnected
	}
	s.connecting = true
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.dial(ctx, true); err != nil {
		s.scheduleReconnect()
		return err
	}
	return nil
}

// dial opens a transport, writes the handshake, and starts the read
// loop.  The connected flag stays false until onConfig sees the
// server's ack.
func (s *Session) dial(ctx context.Context, isReconnect bool) error {
	t, err := s.dialer.Dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	hs := Handshake{
		Method:   "init",
		Data:     s.initialInputs,
		WorkerId: s.workerId,
	}
	if isReconnect {
		hs.Method = "reconnect"
		hs.SessionId = s.sessionId
		hs.Data = nil
	}
	s.mu.Unlock()

	js, err := json.Marshal(&hs)
	if err != nil {
		t.Close()
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return err
	}

	if err = t.Write(ctx, js); err != nil {
		t.Close()
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.t = t
	s.gen++
	gen := s.gen
	loopCtx := s.ctx
	s.mu.Unlock()

	s.Logf("Session dialed (reconnect=%v)", isReconnect)

	go s.readLoop(loopCtx, t, gen)

	return nil
}

// readLoop processes frames from one transport strictly in arrival
// order.  It exits when the transport errors or closes, which is the
// disconnect signal.
func (s *Session) readLoop(ctx context.Context, t transport.Transport, gen int) {
	for {
		msg, err := t.Read(ctx)
		if err != nil {
			s.disconnected(gen, err)
			return
		}
		if err := s.dispatcher.Dispatch(msg); err != nil {
			// Dropped frame.  Keep going; later frames are
			// unaffected.
			s.err(err)
		}
	}
}

// onConfig is the dispatcher's handshake hook.
func (s *Session) onConfig(cfg *ConfigFrame) {
	if cfg.SessionExpired {
		s.expire()
		return
	}

	s.mu.Lock()
	s.forced = false
	if cfg.WorkerId != "" {
		s.workerId = cfg.WorkerId
	}
	if cfg.SessionId != "" {
		s.sessionId = cfg.SessionId
	}
	s.backoff.Reset()
	t := s.t
	ctx := s.ctx
	s.mu.Unlock()

	s.Logf("Session connected: worker=%s session=%s", s.workerId, s.sessionId)

	// Flush the queue in original submission order.  The connected
	// flag stays false until the queue is drained, so a concurrent
	// send lands behind the flush instead of jumping it.
	for {
		s.mu.Lock()
		if s.t != t {
			// The transport died while we were flushing and the
			// disconnect path already took over.
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.connected = true
			s.connecting = false
			s.mu.Unlock()
			break
		}
		queued := s.queue
		s.queue = nil
		s.mu.Unlock()

		for i, msg := range queued {
			if err := t.Write(ctx, msg); err != nil {
				// Put the unwritten tail back at the head so the
				// next successful handshake flushes it.
				s.mu.Lock()
				s.queue = append(append([][]byte{}, queued[i:]...), s.queue...)
				s.mu.Unlock()
				s.err(err)
				t.Close()
				return
			}
		}
	}

	s.startKeepAlive(ctx)
}

// disconnected handles a transport loss for the given transport
// generation.  Exits from stale read loops are ignored.
func (s *Session) disconnected(gen int, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.connecting = false
	if s.t != nil {
		s.t.Close()
		s.t = nil
	}
	expired := s.expired
	mode := s.conf.AllowReconnect
	s.mu.Unlock()

	s.tasks.Cancel(keepAliveTask)

	n := s.requests.CancelAll(Disconnected)
	s.Logf("Session disconnected (%v); cancelled %d pending requests", cause, n)

	if expired {
		return
	}

	switch mode {
	case ReconnectNever:
		s.Logf("Session staying down (allowReconnect=never)")
	case ReconnectForce:
		s.mu.Lock()
		first := !s.forced
		s.forced = true
		s.mu.Unlock()
		if first {
			// Bypass backoff for one immediate attempt.
			go s.Reconnect()
			return
		}
		s.scheduleReconnect()
	default:
		s.scheduleReconnect()
	}
}

// scheduleReconnect schedules exactly one reconnect attempt after the
// next backoff delay.  Any previously scheduled attempt is cancelled
// first, so at most one is ever pending.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	d := s.backoff.Next()
	ctx := s.ctx
	s.mu.Unlock()

	s.tasks.Cancel(reconnectTask)
	if err := s.tasks.After(ctx, reconnectTask, d, func() {
		if err := s.Reconnect(); err != nil {
			s.Logf("Session reconnect attempt: %v", err)
		}
	}); err != nil {
		s.err(err)
		return
	}

	s.Logf("Session reconnecting in %s", d)
}

// expire puts the session into its terminal state: the server refused
// to resume, so no further automatic reconnects.
func (s *Session) expire() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.connected = false
	s.connecting = false
	t := s.t
	s.t = nil
	s.gen++
	s.mu.Unlock()

	s.tasks.Cancel(reconnectTask)
	s.tasks.Cancel(keepAliveTask)
	if t != nil {
		t.Close()
	}
	s.requests.CancelAll(Expired)

	s.Logf("Session expired; connection lost permanently")

	if s.OnExpired != nil {
		s.OnExpired()
	}
}

// startKeepAlive (re)schedules the cron ping task, if configured.
func (s *Session) startKeepAlive(ctx context.Context) {
	if s.conf.KeepAlive == "" {
		return
	}
	s.tasks.Cancel(keepAliveTask)
	err := s.tasks.Every(ctx, keepAliveTask, s.conf.KeepAlive, func() {
		s.mu.Lock()
		t := s.t
		connected := s.connected
		s.mu.Unlock()
		if !connected || t == nil {
			return
		}
		if err := t.Write(ctx, []byte(`{"method":"ping"}`)); err != nil {
			s.err(err)
		}
	})
	if err != nil {
		s.err(fmt.Errorf("bad keepAlive schedule: %v", err))
	}
}

// IsConnected reports whether the handshake has been acknowledged on
// a live transport.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// WorkerId returns the (possibly server-assigned) worker id.
func (s *Session) WorkerId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerId
}

// SessionId returns the server-assigned session id, if any.
func (s *Session) SessionId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionId
}

// SendInput batches the values that changed since the last send into
// one out-bound update.  An update with zero changed values is never
// sent.
func (s *Session) SendInput(values map[string]interface{}) error {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Expired
	}

	changed := make(map[string]interface{}, len(values))
	encoded := make(map[string]string, len(values))
	for name, v := range values {
		js, err := json.Marshal(&v)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if prev, have := s.lastSent[name]; have && prev == string(js) {
			continue
		}
		encoded[name] = string(js)
		changed[name] = v
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	js, err := json.Marshal(&InputUpdate{Data: changed})
	if err != nil {
		return err
	}

	if err := s.sendMsg(js); err != nil {
		return err
	}

	// Only a sent (or queued) update counts as the last sent state.
	s.mu.Lock()
	for name, v := range changed {
		s.lastSent[name] = encoded[name]
		s.inputs[name] = v
	}
	s.mu.Unlock()

	return nil
}

// Call makes a correlated request.  When Call returns nil, exactly
// one of onSuccess and onError will eventually run: with the server's
// response, or with Disconnected/Expired if the session goes down
// first.  When Call itself returns an error, the request was never
// made and neither callback runs.
func (s *Session) Call(method string, args []interface{}, onSuccess func(interface{}), onError func(error), aux interface{}) error {
	s.mu.Lock()
	expired := s.expired
	s.mu.Unlock()
	if expired {
		return Expired
	}

	tag := s.requests.Make(onSuccess, onError, aux)

	js, err := json.Marshal(&Request{
		Method: method,
		Args:   args,
		Tag:    tag,
	})
	if err != nil {
		s.requests.take(tag)
		return err
	}

	if err := s.sendMsg(js); err != nil {
		// The message was never written or queued, so the pending
		// entry must not outlive this call.
		s.requests.take(tag)
		return err
	}
	return nil
}

// Result is one request outcome, delivered on the channel CallChan
// returns.  Exactly one of Value and Err is meaningful; a cancelled
// request carries Disconnected or Expired in Err.
type Result struct {
	Value interface{}
	Err   error
}

// CallChan is Call with a channel instead of callbacks: the returned
// channel delivers exactly one Result and is then closed.
func (s *Session) CallChan(method string, args []interface{}) (<-chan Result, error) {
	ch := make(chan Result, 1)
	err := s.Call(method, args,
		func(value interface{}) {
			ch <- Result{Value: value}
			close(ch)
		},
		func(err error) {
			ch <- Result{Err: err}
			close(ch)
		},
		nil)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// sendMsg writes now when connected; otherwise it queues the message
// for the FIFO flush that follows the next successful handshake.
// When reconnection is off there is no such handshake coming, so the
// message is refused instead of queued.
func (s *Session) sendMsg(msg []byte) error {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Expired
	}
	if !s.connected || s.t == nil {
		if s.conf.AllowReconnect == ReconnectNever && !s.connecting {
			s.mu.Unlock()
			return NotConnected
		}
		s.queue = append(s.queue, msg)
		s.mu.Unlock()
		s.Logf("Session queued %d bytes while disconnected", len(msg))
		return nil
	}
	t := s.t
	ctx := s.ctx
	s.mu.Unlock()

	if err := t.Write(ctx, msg); err != nil {
		s.err(err)
		// The read loop will observe the broken transport and run
		// the disconnect path.
		t.Close()
		return err
	}
	return nil
}

// BindOutput registers an adapter for an output name.  A cached value
// or error for that name is delivered immediately.
func (s *Session) BindOutput(id string, a Adapter) Adapter {
	return s.bindings.Bind(id, a)
}

// UnbindOutput removes exactly one registration of the adapter and
// reports whether anything was removed.
func (s *Session) UnbindOutput(id string, a Adapter) bool {
	return s.bindings.Unbind(id, a)
}

// AddCustomMessageHandler installs a handler for a custom message
// type.  Handlers for a type run in installation order.
func (s *Session) AddCustomMessageHandler(typ string, h CustomHandler) {
	s.dispatcher.AddCustomHandler(typ, h)
}

// Lookup provides current input/output values by name for
// conditional expressions (cond.Scope).  Outputs win over inputs.
func (s *Session) Lookup(name string) (interface{}, bool) {
	if v, have := s.bindings.Value(name); have {
		return v, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, have := s.inputs[name]
	return v, have
}

// Close tears the session down: transport closed, timers cancelled,
// pending requests cancelled.
func (s *Session) Close() error {
	s.mu.Lock()
	s.gen++
	t := s.t
	s.t = nil
	s.connected = false
	s.connecting = false
	cancel := s.cancel
	s.mu.Unlock()

	s.tasks.Shutdown()
	if t != nil {
		t.Close()
	}
	s.requests.CancelAll(Disconnected)
	if cancel != nil {
		cancel()
	}
	return nil
}

// afterUpdate runs once per applied update frame, no matter how many
// fields the frame carried: persist the new values, then run the
// visibility pass.
func (s *Session) afterUpdate(changed map[string]bool) {
	if s.Store != nil {
		all := s.bindings.Values()
		vals := make(map[string]interface{}, len(changed))
		for name := range changed {
			if v, have := all[name]; have {
				vals[name] = v
			}
		}
		ctx := s.ctx
		if ctx == nil {
			ctx = context.TODO()
		}
		if err := s.Store.SaveValues(ctx, s.workerId, vals); err != nil {
			s.err(fmt.Errorf("snapshot save: %v", err))
		}
	}

	if s.Cond != nil {
		s.Cond.Reevaluate(changed)
	}
}

// propagateVerbose pushes the session's Verbose flag down into its
// parts.
func (s *Session) propagateVerbose() {
	s.requests.Verbose = s.Verbose
	s.bindings.Verbose = s.Verbose
	s.dispatcher.Verbose = s.Verbose
	s.tasks.Verbose = s.Verbose
}

// sessionSink forwards progress frames to the session's (optional)
// Progress collaborator.
type sessionSink struct {
	s *Session
}

func (x sessionSink) Progress(f *ProgressFrame) {
	if x.s.Progress != nil {
		x.s.Progress.Progress(f)
	}
}

// ReevaluatorFunc adapts a function to the Reevaluator interface.
type ReevaluatorFunc func(changed map[string]bool)

func (f ReevaluatorFunc) Reevaluate(changed map[string]bool) {
	f(changed)
}
