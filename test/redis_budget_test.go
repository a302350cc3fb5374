//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/apitest"
	"github.com/MrEthical07/goAdmin/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts the number of Redis round-trips
// (individual commands and pipeline calls).
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		// Each pipeline call is one network round-trip regardless of command count.
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// newCountedRedis returns a miniredis-backed client with a cmdCounter hook
// installed. Reset the counter before each measured operation.
func newCountedRedis(t *testing.T) (*redis.Client, *cmdCounter, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// Warm the connection so handshake commands are not counted.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()

	return rdb, counter, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// TestSnapshotSaveRedisBudget verifies that Save is a single Lua script call
// once the script is cached.
func TestSnapshotSaveRedisBudget(t *testing.T) {
	rdb, counter, cleanup := newCountedRedis(t)
	defer cleanup()

	store := session.NewStore(rdb, "ga")
	ctx := context.Background()
	now := time.Now()

	// The first call may cost EVALSHA + EVAL on a script cache miss.
	if err := store.Save(ctx, makeSnapshot("0", "a1", now), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("first Save used %d Redis commands; budget is <= 2", cmds)
	}

	counter.Reset()
	if err := store.Save(ctx, makeSnapshot("0", "a2", now.Add(time.Second)), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Errorf("cached Save used %d Redis commands; budget is 1", cmds)
	}

	counter.Reset()
	if _, err := store.Load(ctx, "0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Errorf("Load used %d Redis commands; budget is 1", cmds)
	}
}

// TestRequestPathTouchesRedisOnlyOnSessionChange verifies that ordinary calls
// never reach Redis; only login and renewal store the session.
func TestRequestPathTouchesRedisOnlyOnSessionChange(t *testing.T) {
	rdb, counter, cleanup := newCountedRedis(t)
	defer cleanup()

	api, err := apitest.New(apitest.Options{})
	if err != nil {
		t.Fatalf("apitest.New failed: %v", err)
	}
	defer api.Close()

	client, err := goAdmin.New().WithBaseURL(api.URL()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	user, pass := api.Credentials()
	if err := client.Login(context.Background(), user, pass); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	counter.Reset()
	for i := 0; i < 20; i++ {
		if _, err := client.Issue(context.Background(), goAdmin.Request{Method: http.MethodGet, Path: "/products"}); err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Fatalf("plain requests used %d Redis commands; budget is 0", cmds)
	}

	api.ExpireAccess()
	if _, err := client.Issue(context.Background(), goAdmin.Request{Method: http.MethodGet, Path: "/products"}); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	client.Close()
	if cmds := counter.Commands(); cmds < 1 || cmds > 2 {
		t.Fatalf("renewal used %d Redis commands; budget is one snapshot save", cmds)
	}
}
