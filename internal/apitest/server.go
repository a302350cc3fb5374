package apitest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/goAdmin/jwt"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Options configures a fake admin API.
type Options struct {
	// BasePath prefixes every route. Defaults to "/api".
	BasePath string
	Username string
	Password string
	// AccessTTL is the lifetime of issued access tokens. Defaults to one minute.
	AccessTTL time.Duration
	// NoSuperAdmin makes the setup check report that no super-admin exists yet.
	NoSuperAdmin bool
	// SigningKey is the HS256 key. A fixed test key is used when empty.
	SigningKey []byte
}

func (o *Options) defaults() {
	if o.BasePath == "" {
		o.BasePath = "/api"
	}
	if o.Username == "" {
		o.Username = "admin"
	}
	if o.Password == "" {
		o.Password = "admin-pass"
	}
	if o.AccessTTL <= 0 {
		o.AccessTTL = time.Minute
	}
	if len(o.SigningKey) == 0 {
		o.SigningKey = []byte("apitest-signing-key-apitest-signing-key")
	}
}

// Server is an in-process admin API with cookie sessions. Access tokens are
// short-lived JWTs; refresh tokens are opaque, rotated on every refresh, and
// scoped to the auth path.
type Server struct {
	opts    Options
	srv     *httptest.Server
	tokens  *jwt.Manager
	passwd  []byte
	catalog catalog

	mu            sync.Mutex
	liveAccess    map[string]string // access token sid -> username
	liveRefresh   map[string]string // refresh token -> username
	refreshDelay  time.Duration
	refreshStatus int
	superAdmin    bool

	refreshCalls atomic.Uint64
	loginCalls   atomic.Uint64
	authRejects  atomic.Uint64
	apiCalls     atomic.Uint64
}

// New starts a fake API on a loopback port. Callers must Close it.
func New(opts Options) (*Server, error) {
	opts.defaults()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     opts.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    opts.SigningKey,
		Issuer:        "apitest",
	})
	if err != nil {
		return nil, err
	}
	// MinCost keeps test logins fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:        opts,
		tokens:      tokens,
		passwd:      hash,
		catalog:     newCatalog(),
		liveAccess:  make(map[string]string),
		liveRefresh: make(map[string]string),
		superAdmin:  !opts.NoSuperAdmin,
	}
	s.srv = httptest.NewServer(s.Router())
	return s, nil
}

// Router builds the route table. Exposed so callers can mount it on their own server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix(s.opts.BasePath).Subrouter()

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost, http.MethodPut, http.MethodGet)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/setup/check", s.handleSetupCheck).Methods(http.MethodGet)

	secured := api.NewRoute().Subrouter()
	secured.Use(s.requireAccess)
	secured.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	secured.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	secured.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	secured.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	secured.HandleFunc("/customers", s.handleListCustomers).Methods(http.MethodGet)
	secured.HandleFunc("/status/{code:[0-9]{3}}", s.handleStatus)

	return r
}

// URL is the API base URL, BasePath included.
func (s *Server) URL() string {
	return s.srv.URL + s.opts.BasePath
}

// Close stops the server.
func (s *Server) Close() {
	s.srv.Close()
}

// Credentials returns the accepted username and password.
func (s *Server) Credentials() (string, string) {
	return s.opts.Username, s.opts.Password
}

// ExpireAccess invalidates every access token issued so far, as if they had all
// run past their expiry. Refresh tokens stay valid.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	clear(s.liveAccess)
	s.mu.Unlock()
}

// RevokeRefresh invalidates every refresh token, so the next refresh is rejected.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	clear(s.liveRefresh)
	s.mu.Unlock()
}

// SetRefreshDelay makes the refresh endpoint wait d before answering.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// SetRefreshStatus forces the refresh endpoint to answer with status. 0 restores
// normal behavior.
func (s *Server) SetRefreshStatus(status int) {
	s.mu.Lock()
	s.refreshStatus = status
	s.mu.Unlock()
}

// SetSuperAdminExists changes the setup check answer.
func (s *Server) SetSuperAdminExists(v bool) {
	s.mu.Lock()
	s.superAdmin = v
	s.mu.Unlock()
}

// RefreshCalls reports how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() uint64 { return s.refreshCalls.Load() }

// LoginCalls reports how many login attempts were made.
func (s *Server) LoginCalls() uint64 { return s.loginCalls.Load() }

// AuthRejects reports how many secured calls were answered 401.
func (s *Server) AuthRejects() uint64 { return s.authRejects.Load() }

// APICalls reports how many secured calls got past the access check.
func (s *Server) APICalls() uint64 { return s.apiCalls.Load() }

var errBadCredentials = errors.New("bad credentials")

func (s *Server) checkCredentials(username, password string) error {
	if username != s.opts.Username {
		return errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwd, []byte(password)); err != nil {
		return errBadCredentials
	}
	return nil
}
