package renewal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goAdmin/internal/hooks"
	"github.com/MrEthical07/goAdmin/internal/transport"
)

// fakeSender answers 401 until the session is valid, then echoes the descriptor ID.
type fakeSender struct {
	valid      atomic.Bool
	alwaysDeny bool

	mu   sync.Mutex
	seen map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{seen: make(map[string]int)}
}

func (s *fakeSender) Send(_ context.Context, d *transport.Descriptor) (*transport.Response, error) {
	s.mu.Lock()
	s.seen[d.ID]++
	s.mu.Unlock()
	if s.alwaysDeny || !s.valid.Load() {
		return nil, &transport.Failure{Kind: transport.FailureAuth, Descriptor: d, Status: http.StatusUnauthorized}
	}
	return &transport.Response{Status: http.StatusOK, Body: []byte(d.ID)}, nil
}

func (s *fakeSender) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id]
}

type gatedRenewer struct {
	calls  atomic.Int32
	gate   chan struct{}
	err    error
	sender *fakeSender
}

func (r *gatedRenewer) Renew(ctx context.Context) error {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return r.err
	}
	if r.sender != nil {
		r.sender.valid.Store(true)
	}
	return nil
}

type countingLogout struct {
	calls atomic.Int32
	cause atomic.Value
}

func (l *countingLogout) ForceLogout(_ context.Context, cause error) {
	l.calls.Add(1)
	l.cause.Store(cause)
}

type renewFunc func(ctx context.Context) error

func (f renewFunc) Renew(ctx context.Context) error { return f(ctx) }

func newTestCoordinator(t *testing.T, cfg Config, sender Sender, r hooks.Renewer, l hooks.LogoutHook) *Coordinator {
	t.Helper()
	reg := &hooks.Registry{}
	if r != nil {
		reg.SetRenewer(r)
	}
	if l != nil {
		reg.SetLogoutHook(l)
	}
	return New(cfg, Deps{
		Sender: sender,
		Hooks:  reg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func desc(id string) *transport.Descriptor {
	return &transport.Descriptor{ID: id, Method: http.MethodGet, Path: "/" + id}
}

type outcome struct {
	id   string
	resp *transport.Response
	err  error
}

func recoverAsync(c *Coordinator, ctx context.Context, id string, out chan<- outcome) {
	go func() {
		resp, err := c.Recover(ctx, desc(id))
		out <- outcome{id: id, resp: resp, err: err}
	}()
}

func TestScenarioThreeRequestsRenewalSucceeds(t *testing.T) {
	sender := newFakeSender()
	renewer := &gatedRenewer{gate: make(chan struct{}), sender: sender}
	logout := &countingLogout{}
	c := newTestCoordinator(t, Config{}, sender, renewer, logout)

	ctx := context.Background()
	out := make(chan outcome, 3)

	recoverAsync(c, ctx, "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })
	recoverAsync(c, ctx, "B", out)
	recoverAsync(c, ctx, "C", out)
	waitFor(t, "B and C to queue", func() bool { return c.Pending() == 2 })

	close(renewer.gate)

	for i := 0; i < 3; i++ {
		o := <-out
		if o.err != nil {
			t.Fatalf("%s failed: %v", o.id, o.err)
		}
		if string(o.resp.Body) != o.id {
			t.Fatalf("%s received another request's response: %q", o.id, o.resp.Body)
		}
	}
	c.Wait()

	if got := renewer.calls.Load(); got != 1 {
		t.Fatalf("expected one renewal, got %d", got)
	}
	for _, id := range []string{"A", "B", "C"} {
		if got := sender.count(id); got != 1 {
			t.Fatalf("expected %s replayed once, got %d", id, got)
		}
	}
	if c.Pending() != 0 || c.State() != StateIdle {
		t.Fatalf("expected idle empty coordinator, got %s pending=%d", c.State(), c.Pending())
	}
	if logout.calls.Load() != 0 {
		t.Fatal("logout must not run after a successful renewal")
	}
}

func TestScenarioThreeRequestsRenewalFails(t *testing.T) {
	sender := newFakeSender()
	cause := errors.New("refresh token expired")
	renewer := &gatedRenewer{gate: make(chan struct{}), err: cause}
	logout := &countingLogout{}
	c := newTestCoordinator(t, Config{}, sender, renewer, logout)

	ctx := context.Background()
	out := make(chan outcome, 3)

	recoverAsync(c, ctx, "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })
	recoverAsync(c, ctx, "B", out)
	recoverAsync(c, ctx, "C", out)
	waitFor(t, "B and C to queue", func() bool { return c.Pending() == 2 })

	close(renewer.gate)

	for i := 0; i < 3; i++ {
		o := <-out
		var f *Failure
		if !errors.As(o.err, &f) || f.Kind != FailureRenewal {
			t.Fatalf("%s: expected renewal failure, got %v", o.id, o.err)
		}
		if !errors.Is(o.err, cause) {
			t.Fatalf("%s: expected the renewal cause, got %v", o.id, o.err)
		}
	}
	c.Wait()

	if got := logout.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one forced logout, got %d", got)
	}
	if got, _ := logout.cause.Load().(error); !errors.Is(got, cause) {
		t.Fatalf("logout hook got wrong cause: %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", c.Pending())
	}
	for _, id := range []string{"A", "B", "C"} {
		if sender.count(id) != 0 {
			t.Fatalf("%s must not be replayed after a failed renewal", id)
		}
	}
}

func TestConcurrentFailuresShareOneRenewal(t *testing.T) {
	const n = 32
	sender := newFakeSender()
	var c *Coordinator
	var calls atomic.Int32
	renewer := renewFunc(func(context.Context) error {
		calls.Add(1)
		deadline := time.Now().Add(2 * time.Second)
		for c.Pending() < n-1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		sender.valid.Store(true)
		return nil
	})
	c = newTestCoordinator(t, Config{}, sender, renewer, nil)

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id string) {
			defer wg.Done()
			<-start
			resp, err := c.Recover(context.Background(), desc(id))
			if err == nil && string(resp.Body) != id {
				err = fmt.Errorf("%s got %q", id, resp.Body)
			}
			errs <- err
		}(fmt.Sprintf("r-%d", i))
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one renewal for %d concurrent failures, got %d", n, got)
	}
}

func TestRetriedDescriptorIsReplayFailureWithoutRenewal(t *testing.T) {
	renewer := &gatedRenewer{}
	c := newTestCoordinator(t, Config{}, newFakeSender(), renewer, nil)

	d := desc("X").AsRetry()
	_, err := c.Recover(context.Background(), d)
	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureReplay || !errors.Is(err, ErrReplayRejected) {
		t.Fatalf("expected replay failure, got %v", err)
	}
	if renewer.calls.Load() != 0 {
		t.Fatal("replay failure must not trigger renewal")
	}
}

func TestReplayHittingAuthFailureAgainIsTerminal(t *testing.T) {
	sender := newFakeSender()
	sender.alwaysDeny = true
	renewer := &gatedRenewer{}
	logout := &countingLogout{}
	c := newTestCoordinator(t, Config{}, sender, renewer, logout)

	_, err := c.Recover(context.Background(), desc("A"))
	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureReplay {
		t.Fatalf("expected replay failure, got %v", err)
	}
	if f.Status != http.StatusUnauthorized {
		t.Fatalf("expected replay failure to carry 401, got %d", f.Status)
	}
	c.Wait()
	if renewer.calls.Load() != 1 {
		t.Fatalf("expected a single renewal, got %d", renewer.calls.Load())
	}
	if sender.count("A") != 1 {
		t.Fatalf("expected exactly one replay, got %d", sender.count("A"))
	}
	if logout.calls.Load() != 0 {
		t.Fatal("replay failure must not force logout")
	}
}

func TestRenewalTimeoutBecomesRenewalFailure(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	renewer := renewFunc(func(context.Context) error {
		<-block
		return nil
	})
	logout := &countingLogout{}
	c := newTestCoordinator(t, Config{Timeout: 30 * time.Millisecond}, newFakeSender(), renewer, logout)

	_, err := c.Recover(context.Background(), desc("A"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	c.Wait()
	if logout.calls.Load() != 1 {
		t.Fatalf("expected logout after timeout, got %d", logout.calls.Load())
	}
}

func TestNoRenewerFailsAndLogsOut(t *testing.T) {
	logout := &countingLogout{}
	c := newTestCoordinator(t, Config{}, newFakeSender(), nil, logout)

	_, err := c.Recover(context.Background(), desc("A"))
	if !errors.Is(err, ErrNoRenewer) {
		t.Fatalf("expected ErrNoRenewer, got %v", err)
	}
	c.Wait()
	if logout.calls.Load() != 1 {
		t.Fatalf("expected one logout, got %d", logout.calls.Load())
	}
}

func TestPanickingRenewerIsRenewalFailure(t *testing.T) {
	renewer := renewFunc(func(context.Context) error { panic("boom") })
	c := newTestCoordinator(t, Config{}, newFakeSender(), renewer, nil)

	_, err := c.Recover(context.Background(), desc("A"))
	if !errors.Is(err, ErrHookPanic) {
		t.Fatalf("expected ErrHookPanic, got %v", err)
	}
}

func TestBoundedQueueOverflowFailsFast(t *testing.T) {
	sender := newFakeSender()
	renewer := &gatedRenewer{gate: make(chan struct{}), sender: sender}
	c := newTestCoordinator(t, Config{MaxWaiters: 1}, sender, renewer, nil)

	ctx := context.Background()
	out := make(chan outcome, 2)
	recoverAsync(c, ctx, "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })
	recoverAsync(c, ctx, "B", out)
	waitFor(t, "B to queue", func() bool { return c.Pending() == 1 })

	_, err := c.Recover(ctx, desc("C"))
	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureQueueFull {
		t.Fatalf("expected queue full failure, got %v", err)
	}

	close(renewer.gate)
	for i := 0; i < 2; i++ {
		if o := <-out; o.err != nil {
			t.Fatalf("%s failed: %v", o.id, o.err)
		}
	}
}

func TestCancelledWaiterIsSkippedAndDoesNotBlockOthers(t *testing.T) {
	sender := newFakeSender()
	renewer := &gatedRenewer{gate: make(chan struct{}), sender: sender}
	c := newTestCoordinator(t, Config{}, sender, renewer, nil)

	out := make(chan outcome, 3)
	recoverAsync(c, context.Background(), "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })

	bctx, cancel := context.WithCancel(context.Background())
	recoverAsync(c, bctx, "B", out)
	recoverAsync(c, context.Background(), "C", out)
	waitFor(t, "B and C to queue", func() bool { return c.Pending() == 2 })

	cancel()
	close(renewer.gate)

	got := map[string]error{}
	for i := 0; i < 3; i++ {
		o := <-out
		got[o.id] = o.err
	}
	if !errors.Is(got["B"], context.Canceled) {
		t.Fatalf("expected B cancelled, got %v", got["B"])
	}
	if got["A"] != nil || got["C"] != nil {
		t.Fatalf("expected A and C to succeed, got %v / %v", got["A"], got["C"])
	}
	c.Wait()
	if sender.count("B") != 0 {
		t.Fatal("cancelled waiter must not be replayed")
	}
}

func TestTriggerCancellationDoesNotAbortRenewal(t *testing.T) {
	sender := newFakeSender()
	renewer := &gatedRenewer{gate: make(chan struct{}), sender: sender}
	c := newTestCoordinator(t, Config{}, sender, renewer, nil)

	actx, cancel := context.WithCancel(context.Background())
	out := make(chan outcome, 2)
	recoverAsync(c, actx, "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })
	recoverAsync(c, context.Background(), "B", out)
	waitFor(t, "B to queue", func() bool { return c.Pending() == 1 })

	cancel()
	if o := <-out; o.id != "A" || !errors.Is(o.err, context.Canceled) {
		t.Fatalf("expected A to return cancelled first, got %s %v", o.id, o.err)
	}
	close(renewer.gate)
	if o := <-out; o.id != "B" || o.err != nil {
		t.Fatalf("expected B to succeed after renewal, got %s %v", o.id, o.err)
	}
}

func TestHooksAreReadAtRenewalTime(t *testing.T) {
	sender := newFakeSender()
	reg := &hooks.Registry{}
	c := New(Config{}, Deps{Sender: sender, Hooks: reg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	first := &gatedRenewer{sender: sender}
	reg.SetRenewer(first)
	if _, err := c.Recover(context.Background(), desc("A")); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	c.Wait()

	sender.valid.Store(false)
	second := &gatedRenewer{sender: sender}
	reg.SetRenewer(second)
	if _, err := c.Recover(context.Background(), desc("B")); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	c.Wait()

	if first.calls.Load() != 1 || second.calls.Load() != 1 {
		t.Fatalf("expected one call per registered renewer, got %d / %d", first.calls.Load(), second.calls.Load())
	}
}

func TestEventsObserveLifecycle(t *testing.T) {
	sender := newFakeSender()
	renewer := &gatedRenewer{sender: sender}
	var started, finished, replayed atomic.Int32
	reg := &hooks.Registry{}
	reg.SetRenewer(renewer)
	c := New(Config{}, Deps{
		Sender: sender,
		Hooks:  reg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Events: Events{
			RenewalStarted:  func(*transport.Descriptor) { started.Add(1) },
			RenewalFinished: func(_ *transport.Descriptor, released int, _ time.Duration, err error) {
				if released != 1 || err != nil {
					t.Errorf("unexpected finish: released=%d err=%v", released, err)
				}
				finished.Add(1)
			},
			Replayed: func(*transport.Descriptor, error) { replayed.Add(1) },
		},
	})

	if _, err := c.Recover(context.Background(), desc("A")); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	c.Wait()
	if started.Load() != 1 || finished.Load() != 1 || replayed.Load() != 1 {
		t.Fatalf("unexpected event counts %d/%d/%d", started.Load(), finished.Load(), replayed.Load())
	}
}

type logoutFunc func(ctx context.Context, cause error)

func (f logoutFunc) ForceLogout(ctx context.Context, cause error) { f(ctx, cause) }

func TestLogoutHookRunsAfterRenewalSettled(t *testing.T) {
	sender := newFakeSender()
	gate := make(chan struct{})
	var renewCalls atomic.Int32
	renewer := renewFunc(func(context.Context) error {
		if renewCalls.Add(1) == 1 {
			<-gate
			return errors.New("refresh token expired")
		}
		sender.valid.Store(true)
		return nil
	})

	out := make(chan outcome, 2)
	var c *Coordinator
	var (
		stateInHook   State
		pendingInHook int
		heldInHook    outcome
		nestedErr     error
		nestedBody    string
		hookCalls     atomic.Int32
	)
	hook := logoutFunc(func(ctx context.Context, _ error) {
		hookCalls.Add(1)
		stateInHook = c.State()
		pendingInHook = c.Pending()
		select {
		case heldInHook = <-out:
		case <-time.After(2 * time.Second):
		}
		nctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		resp, err := c.Recover(nctx, desc("H"))
		nestedErr = err
		if resp != nil {
			nestedBody = string(resp.Body)
		}
	})
	c = newTestCoordinator(t, Config{}, sender, renewer, hook)

	ctx := context.Background()
	recoverAsync(c, ctx, "A", out)
	waitFor(t, "renewal to start", func() bool { return c.State() == StateRenewing })
	recoverAsync(c, ctx, "B", out)
	waitFor(t, "B to queue", func() bool { return c.Pending() == 1 })

	close(gate)

	select {
	case o := <-out:
		if o.id != "A" {
			t.Fatalf("expected the trigger to be released last, got %s", o.id)
		}
		var f *Failure
		if !errors.As(o.err, &f) || f.Kind != FailureRenewal {
			t.Fatalf("A: expected renewal failure, got %v", o.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("trigger never released; logout hook blocked the coordinator")
	}
	c.Wait()

	if hookCalls.Load() != 1 {
		t.Fatalf("expected one logout, got %d", hookCalls.Load())
	}
	if stateInHook == StateRenewing || pendingInHook != 0 {
		t.Fatalf("logout hook saw an unsettled coordinator: state=%s pending=%d", stateInHook, pendingInHook)
	}
	if heldInHook.id != "B" {
		t.Fatalf("expected B rejected before the logout hook ran, got %q", heldInHook.id)
	}
	var f *Failure
	if !errors.As(heldInHook.err, &f) || f.Kind != FailureRenewal {
		t.Fatalf("B: expected renewal failure, got %v", heldInHook.err)
	}
	if nestedErr != nil || nestedBody != "H" {
		t.Fatalf("request issued from the logout hook: body=%q err=%v", nestedBody, nestedErr)
	}
	if got := renewCalls.Load(); got != 2 {
		t.Fatalf("expected the hook's request to start a second renewal, got %d renewals", got)
	}
}

// slowReplaySender holds every replay until release is closed.
type slowReplaySender struct {
	*fakeSender
	release chan struct{}
}

func (s *slowReplaySender) Send(ctx context.Context, d *transport.Descriptor) (*transport.Response, error) {
	if d.Retried {
		<-s.release
	}
	return s.fakeSender.Send(ctx, d)
}

func TestDrainingLastsUntilReplaysFinish(t *testing.T) {
	base := newFakeSender()
	sender := &slowReplaySender{fakeSender: base, release: make(chan struct{})}
	renewer := &gatedRenewer{sender: base}
	c := newTestCoordinator(t, Config{}, sender, renewer, nil)

	out := make(chan outcome, 1)
	recoverAsync(c, context.Background(), "A", out)
	waitFor(t, "draining", func() bool { return c.State() == StateDraining })

	close(sender.release)
	if o := <-out; o.err != nil {
		t.Fatalf("A failed: %v", o.err)
	}
	c.Wait()
	if c.State() != StateIdle {
		t.Fatalf("expected idle after the last replay, got %s", c.State())
	}
}
