// Package fleettest runs an in-process fake of the fleet-management API
// for tests: GET /api/servers/ and PATCH /api/servers/{id}, behind bearer
// auth, with every PATCH recorded.
package fleettest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"orchctl/common"
	"orchctl/middleware"
)

// Patch is one recorded PATCH request.
type Patch struct {
	ID          string
	Body        map[string]any
	ContentType string
}

// Server is a fake fleet API bound to a random local port.
type Server struct {
	*httptest.Server
	Token string

	mu           sync.Mutex
	hosts        []common.Host
	patches      []Patch
	listRequests int
	listStatus   int
	listBody     []byte
	patchStatus  int
}

// New starts a server that accepts token and serves hosts. It is closed
// when the test ends.
func New(t testing.TB, token string, hosts ...common.Host) *Server {
	t.Helper()
	s := &Server{Token: token, hosts: hosts}

	r := chi.NewRouter()
	r.Use(middleware.RequireBearer(token))
	r.Get("/api/servers/", s.handleList)
	r.Patch("/api/servers/{id}", s.handlePatch)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Config returns a configuration pointing at this server.
func (s *Server) Config() *common.Config {
	return &common.Config{APIURL: s.URL, APIToken: s.Token, LogLevel: "error"}
}

// SetHosts replaces the served host list.
func (s *Server) SetHosts(hosts ...common.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts = hosts
}

// FailList makes GET /api/servers/ answer with status.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// ServeRawList makes GET /api/servers/ answer 200 with body verbatim.
func (s *Server) ServeRawList(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listBody = []byte(body)
}

// FailPatch makes every PATCH answer with status.
func (s *Server) FailPatch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchStatus = status
}

// Patches returns the PATCH requests received so far.
func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// ListRequests counts GET /api/servers/ calls.
func (s *Server) ListRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRequests
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listRequests++

	if s.listStatus != 0 {
		http.Error(w, http.StatusText(s.listStatus), s.listStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if s.listBody != nil {
		w.Write(s.listBody)
		return
	}
	hosts := s.hosts
	if hosts == nil {
		hosts = []common.Host{}
	}
	json.NewEncoder(w).Encode(hosts)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, Patch{ID: id, Body: body, ContentType: r.Header.Get("Content-Type")})

	if s.patchStatus != 0 {
		http.Error(w, http.StatusText(s.patchStatus), s.patchStatus)
		return
	}
	for i := range s.hosts {
		if string(s.hosts[i].ID) != id {
			continue
		}
		if v, ok := body["provisioned"].(bool); ok {
			s.hosts[i].Provisioned = v
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.hosts[i])
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}
