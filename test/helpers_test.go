//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/MrEthical07/goAdmin/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "ga")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSnapshot(tenantID, accessValue string, savedAt time.Time) *session.Snapshot {
	return &session.Snapshot{
		Version:  session.SnapshotVersion,
		TenantID: tenantID,
		BaseURL:  "http://127.0.0.1:8080/api",
		Cookies: []session.Cookie{
			{Name: "access_token", Value: accessValue, Path: "/", HttpOnly: true},
			{Name: "refresh_token", Value: "r-" + accessValue, Path: "/api/auth", HttpOnly: true},
		},
		SavedAt: savedAt.UTC(),
	}
}
