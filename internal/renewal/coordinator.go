package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goAdmin/internal/deferred"
	"github.com/MrEthical07/goAdmin/internal/hooks"
	"github.com/MrEthical07/goAdmin/internal/transport"
)

var (
	ErrTimeout        = errors.New("renewal timed out")
	ErrNoRenewer      = errors.New("no renewer registered")
	ErrReplayRejected = errors.New("authorization failed after renewal")
	ErrHookPanic      = errors.New("renewer panicked")
)

// FailureKind classifies coordinator failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRenewal
	FailureReplay
	FailureQueueFull
)

// Failure is returned for every request the coordinator could not complete.
type Failure struct {
	Kind       FailureKind
	Descriptor *transport.Descriptor
	Status     int
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureRenewal:
		return fmt.Sprintf("session renewal failed: %v", f.Err)
	case FailureReplay:
		return fmt.Sprintf("replay rejected: %v", f.Err)
	case FailureQueueFull:
		return fmt.Sprintf("renewal queue full: %v", f.Err)
	default:
		return fmt.Sprintf("renewal: %v", f.Err)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// State is the coordinator's externally visible phase.
type State int

const (
	StateIdle State = iota
	StateRenewing
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRenewing:
		return "renewing"
	case StateDraining:
		return "draining"
	default:
		return "idle"
	}
}

// Sender issues one call. *transport.Transport satisfies it.
type Sender interface {
	Send(ctx context.Context, d *transport.Descriptor) (*transport.Response, error)
}

// Config bounds the coordinator.
type Config struct {
	// Timeout bounds a single renewal attempt; expiry is a renewal failure.
	Timeout time.Duration
	// MaxWaiters caps the requests held behind an in-flight renewal, not
	// counting the trigger. <= 0 means unbounded.
	MaxWaiters int
}

// Events receives lifecycle notifications. Every field is optional and must not block.
type Events struct {
	RenewalStarted  func(trigger *transport.Descriptor)
	RenewalFinished func(trigger *transport.Descriptor, released int, elapsed time.Duration, err error)
	Queued          func(d *transport.Descriptor, depth int)
	Overflow        func(d *transport.Descriptor)
	Replayed        func(d *transport.Descriptor, err error)
	ReplayRejected  func(d *transport.Descriptor)
	ForcedLogout    func(cause error)
}

// Deps captures coordinator dependencies.
type Deps struct {
	Sender Sender
	Hooks  *hooks.Registry
	Logger *slog.Logger
	Events Events
}

// Coordinator owns the renewal flag and the waiter queue. One instance serves one
// session; it is safe for concurrent use.
type Coordinator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	renewing bool
	state    State
	trigger  deferred.Continuation
	triggerD *transport.Descriptor
	queue    *deferred.Queue
	// replays counts released requests whose replay has not finished.
	replays int

	inflight sync.WaitGroup
}

// New builds an idle coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if deps.Hooks == nil {
		deps.Hooks = &hooks.Registry{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:   cfg,
		deps:  deps,
		log:   logger,
		queue: deferred.New(cfg.MaxWaiters),
	}
}

type result struct {
	resp *transport.Response
	err  error
}

// Recover decides the fate of d, which just failed with an authorization status.
// It blocks until d was replayed, rejected, or ctx ended.
func (c *Coordinator) Recover(ctx context.Context, d *transport.Descriptor) (*transport.Response, error) {
	if d.Retried {
		c.emitReplayRejected(d)
		return nil, &Failure{Kind: FailureReplay, Descriptor: d, Err: ErrReplayRejected}
	}

	retry := d.AsRetry()
	done := make(chan result, 1)
	cont := func(rd *transport.Descriptor, o deferred.Outcome) {
		if !o.Replay() {
			done <- result{err: &Failure{Kind: FailureRenewal, Descriptor: rd, Err: o.Err}}
			return
		}
		if err := ctx.Err(); err != nil {
			c.replayDone()
			done <- result{err: err}
			return
		}
		go func() {
			resp, err := c.replay(ctx, rd)
			c.replayDone()
			done <- result{resp: resp, err: err}
		}()
	}

	c.mu.Lock()
	if c.renewing {
		if err := c.queue.Enqueue(retry, cont); err != nil {
			c.mu.Unlock()
			c.emitOverflow(d)
			return nil, &Failure{Kind: FailureQueueFull, Descriptor: d, Err: err}
		}
		depth := c.queue.Len()
		c.mu.Unlock()
		c.emitQueued(retry, depth)
	} else {
		c.renewing = true
		c.state = StateRenewing
		c.trigger = cont
		c.triggerD = retry
		c.inflight.Add(1)
		c.mu.Unlock()
		go c.run(ctx, retry)
	}

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, trigger *transport.Descriptor) {
	defer c.inflight.Done()

	c.emitRenewalStarted(trigger)
	c.log.Info("session renewal started", "request_id", trigger.ID, "method", trigger.Method, "path", trigger.Path)

	started := time.Now()
	err := c.renew(ctx)
	elapsed := time.Since(started)

	c.mu.Lock()
	c.renewing = false
	lead, leadD := c.trigger, c.triggerD
	c.trigger, c.triggerD = nil, nil
	held := c.queue.Detach()
	released := 1 + held.Len()
	if err == nil {
		c.state = StateDraining
		c.replays += released
		c.inflight.Add(released)
	} else {
		c.state = c.settledState()
	}
	c.mu.Unlock()

	// Observers see the outcome before any caller does.
	o := deferred.Outcome{Err: err}
	if err != nil {
		c.log.Warn("session renewal failed", "request_id", trigger.ID, "elapsed", elapsed, "error", err)
		c.emitRenewalFinished(trigger, released, elapsed, err)
		held.Drain(o)
		c.forceLogout(ctx, err)
		lead(leadD, o)
		return
	}

	c.log.Info("session renewal succeeded", "request_id", trigger.ID, "released", released, "elapsed", elapsed)
	c.emitRenewalFinished(trigger, released, elapsed, nil)
	lead(leadD, o)
	held.Drain(o)
}

// replayDone marks one released request as finished. The coordinator leaves
// Draining once the last replay of the settled renewal is done.
func (c *Coordinator) replayDone() {
	c.mu.Lock()
	c.replays--
	if c.state == StateDraining {
		c.state = c.settledState()
	}
	c.mu.Unlock()
	c.inflight.Done()
}

// settledState is the phase outside a renewal. Callers hold c.mu.
func (c *Coordinator) settledState() State {
	if c.replays > 0 {
		return StateDraining
	}
	return StateIdle
}

func (c *Coordinator) renew(ctx context.Context) error {
	r := c.deps.Hooks.Renewer()
	if r == nil {
		return ErrNoRenewer
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- safeRenew(rctx, r)
	}()

	select {
	case err := <-errCh:
		if err != nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrTimeout, c.cfg.Timeout, err)
		}
		return err
	case <-rctx.Done():
		return fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
	}
}

func safeRenew(ctx context.Context, r hooks.Renewer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, p)
		}
	}()
	return r.Renew(ctx)
}

func (c *Coordinator) forceLogout(ctx context.Context, cause error) {
	if c.deps.Events.ForcedLogout != nil {
		c.deps.Events.ForcedLogout(cause)
	}
	h := c.deps.Hooks.LogoutHook()
	if h == nil {
		c.log.Warn("no logout hook registered; session state left in place")
		return
	}
	c.log.Warn("forcing logout after failed renewal", "error", cause)
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("logout hook panicked", "panic", p)
		}
	}()
	h.ForceLogout(context.WithoutCancel(ctx), cause)
}

func (c *Coordinator) replay(ctx context.Context, d *transport.Descriptor) (*transport.Response, error) {
	resp, err := c.deps.Sender.Send(ctx, d)
	if err != nil && transport.KindOf(err) == transport.FailureAuth {
		c.emitReplayRejected(d)
		var tf *transport.Failure
		status := 0
		if errors.As(err, &tf) {
			status = tf.Status
		}
		err = &Failure{Kind: FailureReplay, Descriptor: d, Status: status, Err: ErrReplayRejected}
	}
	if c.deps.Events.Replayed != nil {
		c.deps.Events.Replayed(d, err)
	}
	return resp, err
}

// State reports the current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports how many requests are held behind the in-flight renewal,
// not counting the trigger.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Wait blocks until no renewal is in flight and every request it released has
// finished its replay.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) emitRenewalStarted(d *transport.Descriptor) {
	if c.deps.Events.RenewalStarted != nil {
		c.deps.Events.RenewalStarted(d)
	}
}

func (c *Coordinator) emitRenewalFinished(d *transport.Descriptor, released int, elapsed time.Duration, err error) {
	if c.deps.Events.RenewalFinished != nil {
		c.deps.Events.RenewalFinished(d, released, elapsed, err)
	}
}

func (c *Coordinator) emitQueued(d *transport.Descriptor, depth int) {
	if c.deps.Events.Queued != nil {
		c.deps.Events.Queued(d, depth)
	}
}

func (c *Coordinator) emitOverflow(d *transport.Descriptor) {
	if c.deps.Events.Overflow != nil {
		c.deps.Events.Overflow(d)
	}
}

func (c *Coordinator) emitReplayRejected(d *transport.Descriptor) {
	if c.deps.Events.ReplayRejected != nil {
		c.deps.Events.ReplayRejected(d)
	}
}
