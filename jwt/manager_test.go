package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseHS256(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("test-secret-test-secret-test-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.CreateAccess("admin", "sid-1", "superadmin")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "admin" || claims.SID != "sid-1" || claims.Role != "superadmin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
	if _, err := m.CreateAccess("u", "s", ""); err == nil {
		t.Fatal("expected verify-only manager to refuse signing")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "goadmin",
		Audience:      "admin-api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.CreateAccess("u", "s1", "")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(c AccessClaims) string {
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	now := time.Now()
	cases := []struct {
		name   string
		claims gjwt.RegisteredClaims
		ok     bool
	}{
		{"wrong issuer", gjwt.RegisteredClaims{Issuer: "other", Audience: gjwt.ClaimStrings{"admin-api"}, ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute))}, false},
		{"wrong audience", gjwt.RegisteredClaims{Issuer: "goadmin", Audience: gjwt.ClaimStrings{"other"}, ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute))}, false},
		{"within leeway", gjwt.RegisteredClaims{Issuer: "goadmin", Audience: gjwt.ClaimStrings{"admin-api"}, ExpiresAt: gjwt.NewNumericDate(now.Add(-15 * time.Second))}, true},
		{"expired", gjwt.RegisteredClaims{Issuer: "goadmin", Audience: gjwt.ClaimStrings{"admin-api"}, ExpiresAt: gjwt.NewNumericDate(now.Add(-2 * time.Minute))}, false},
		{"missing exp", gjwt.RegisteredClaims{Issuer: "goadmin", Audience: gjwt.ClaimStrings{"admin-api"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.ParseAccess(sign(AccessClaims{SID: "s1", RegisteredClaims: tc.claims}))
			if tc.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected failure")
			}
		})
	}
}

func TestPeekExpiry(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: 5 * time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	issued := time.Unix(1_700_000_000, 0)
	tok, err := m.CreateAccessAt("u", "s", "", issued)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exp, err := PeekExpiry(tok)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !exp.Equal(issued.Add(5 * time.Minute)) {
		t.Fatalf("expected %v, got %v", issued.Add(5*time.Minute), exp)
	}

	noExp, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{Subject: "u"}).SignedString([]byte("k"))
	if _, err := PeekExpiry(noExp); !errors.Is(err, ErrNoExpiry) {
		t.Fatalf("expected ErrNoExpiry, got %v", err)
	}
	if _, err := PeekExpiry("not-a-token"); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	bad := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("short")},
		{AccessTTL: time.Minute, SigningMethod: "rs256", PublicKey: pub},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for i, cfg := range bad {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
