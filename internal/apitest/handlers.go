package apitest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Product is one catalog entry.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// Customer is one customer record.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type catalog struct {
	mu        sync.RWMutex
	products  []Product
	customers []Customer
}

func newCatalog() catalog {
	return catalog{
		products: []Product{
			{ID: "p-1", Name: "Espresso beans 1kg", SKU: "ESP-1000", Price: 24.5, Stock: 120},
			{ID: "p-2", Name: "Ceramic mug", SKU: "MUG-350", Price: 9.9, Stock: 400},
			{ID: "p-3", Name: "Pour-over kettle", SKU: "KET-900", Price: 54, Stock: 35},
		},
		customers: []Customer{
			{ID: "c-1", Name: "Ada Byron", Email: "ada@example.com"},
			{ID: "c-2", Name: "Grace Hopper", Email: "grace@example.com"},
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.checkCredentials(req.Username, req.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	exp, err := s.issueSession(w, req.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Username: req.Username, ExpiresAt: exp})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay, forced := s.refreshDelay, s.refreshStatus
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if forced != 0 {
		writeJSON(w, forced, map[string]string{"error": http.StatusText(forced)})
		return
	}

	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing refresh token"})
		return
	}

	s.mu.Lock()
	username, ok := s.liveRefresh[c.Value]
	if ok {
		// Rotation: a refresh token is good for one use.
		delete(s.liveRefresh, c.Value)
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh rejected"})
		return
	}

	exp, err := s.issueSession(w, username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Username: username, ExpiresAt: exp})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.liveRefresh, c.Value)
		s.mu.Unlock()
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		if claims, err := s.tokens.ParseAccess(c.Value); err == nil {
			s.mu.Lock()
			delete(s.liveAccess, claims.SID)
			s.mu.Unlock()
		}
	}
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Path: "/", MaxAge: -1, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Path: s.opts.BasePath + "/auth", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetupCheck(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	exists := s.superAdmin
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"username": claims.UID, "role": claims.Role})
}

func (s *Server) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	s.catalog.mu.RLock()
	out := append([]Product(nil), s.catalog.products...)
	s.catalog.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	for _, p := range s.catalog.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid product"})
		return
	}
	p.ID = "p-" + uuid.NewString()
	s.catalog.mu.Lock()
	s.catalog.products = append(s.catalog.products, p)
	s.catalog.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, _ *http.Request) {
	s.catalog.mu.RLock()
	out := append([]Customer(nil), s.catalog.customers...)
	s.catalog.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

// handleStatus answers with the status in the path, for error-path tests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, _ := strconv.Atoi(mux.Vars(r)["code"])
	if code < 100 || code > 599 {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]int{"status": code})
}

// issueSession sets a fresh access cookie and a fresh refresh cookie for username.
func (s *Server) issueSession(w http.ResponseWriter, username string) (time.Time, error) {
	sid := uuid.NewString()
	now := time.Now()
	access, err := s.tokens.CreateAccessAt(username, sid, "superadmin", now)
	if err != nil {
		return time.Time{}, err
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.liveAccess[sid] = username
	s.liveRefresh[refresh] = username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: access, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: refresh, Path: s.opts.BasePath + "/auth", HttpOnly: true, SameSite: http.SameSiteStrictMode})
	return now.Add(s.tokens.TTL()), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
