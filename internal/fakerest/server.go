// Package fakerest serves a fakedb.DB over the PostgREST and auth HTTP API so
// the REST connection can be tested end to end.
package fakerest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"

	"github.com/medkit/medinventory/internal/codec"
	"github.com/medkit/medinventory/internal/fakedb"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

type user struct {
	id       models.Identity
	email    string
	password string
}

// Server is an http.Handler speaking the subset of PostgREST and the auth
// service the REST connection uses.
type Server struct {
	db     *fakedb.DB
	apiKey string
	codec  codec.Codec
	router *mux.Router

	mu     sync.Mutex
	users  map[string]*user
	tokens map[string]*user
}

func New(db *fakedb.DB, apiKey string) *Server {
	s := &Server{
		db:     db,
		apiKey: apiKey,
		codec:  codec.NewJSON(),
		users:  make(map[string]*user),
		tokens: make(map[string]*user),
	}

	router := mux.NewRouter()
	router.Use(s.requireAPIKey)

	rest := router.PathPrefix(constants.DefaultRESTPath).Subrouter()
	rest.HandleFunc("/", s.handleRoot).Methods("GET")
	rest.HandleFunc("/rpc/{fn}", s.handleRPC).Methods("POST")
	rest.HandleFunc("/{table}", s.handleSelect).Methods("GET")
	rest.HandleFunc("/{table}", s.handleInsert).Methods("POST")
	rest.HandleFunc("/{table}", s.handleUpdate).Methods("PATCH")

	auth := router.PathPrefix(constants.DefaultAuthPath).Subrouter()
	auth.HandleFunc("/user", s.handleUser).Methods("GET")
	auth.HandleFunc("/token", s.handleToken).Methods("POST")
	auth.HandleFunc("/logout", s.handleLogout).Methods("POST")

	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser registers credentials and returns the user's identity.
func (s *Server) AddUser(email, password string) models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &user{id: models.NewIdentity(), email: email, password: password}
	s.users[email] = u
	return u.id
}

// IssueToken returns a valid access token for a registered user.
func (s *Server) IssueToken(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return "", fmt.Errorf("no user %q", email)
	}
	return s.issueLocked(u), nil
}

func (s *Server) issueLocked(u *user) string {
	token := "tok-" + uuid.Must(uuid.NewV4()).String()
	s.tokens[token] = u
	return token
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("apikey") != s.apiKey {
			s.respondJSON(w, http.StatusUnauthorized, map[string]string{
				"message": "Invalid API key",
				"hint":    "Double check your anon or service_role API key.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"swagger": "2.0"})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	q, err := query.ParseValues(table, r.URL.Query(), r.Header.Get("Range"))
	if err != nil {
		s.respondRemote(w, &connection.RemoteError{Code: "PGRST100", Message: err.Error(), Status: http.StatusBadRequest})
		return
	}

	res, err := s.db.Select(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var rows []codec.RawMessage
	if err := s.codec.Unmarshal(res.Rows, &rows); err != nil {
		s.respondError(w, err)
		return
	}

	start := 0
	if window, ok := q.Window(); ok {
		start = window.Start
		if len(rows) == 0 && int64(start) >= res.Count && start > 0 {
			w.Header().Set("Content-Range", query.ContentRange(0, 0, res.Count))
			s.respondRemote(w, &connection.RemoteError{
				Code:    "PGRST103",
				Message: "Requested range not satisfiable",
				Details: fmt.Sprintf("An offset of %d was requested, but there are only %d rows.", start, res.Count),
				Status:  http.StatusRequestedRangeNotSatisfiable,
			})
			return
		}
	}

	if strings.Contains(r.Header.Get("Prefer"), constants.CountExact) {
		w.Header().Set("Content-Range", query.ContentRange(start, len(rows), res.Count))
	}

	status := http.StatusOK
	if int64(len(rows)) < res.Count {
		status = http.StatusPartialContent
	}
	s.respondRaw(w, status, res.Rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	record, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	var (
		data []byte
		err  error
	)
	if strings.Contains(r.Header.Get("Prefer"), constants.MergeDuplicates) {
		data, err = s.db.Upsert(r.Context(), table, record)
	} else {
		data, err = s.db.Insert(r.Context(), table, record)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondRaw(w, http.StatusCreated, data)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	raw, ok := strings.CutPrefix(r.URL.Query().Get(constants.IDColumn), "eq.")
	id, err := strconv.ParseInt(raw, 10, 64)
	if !ok || err != nil {
		s.respondRemote(w, &connection.RemoteError{Code: "PGRST100", Message: "updates need an id=eq filter", Status: http.StatusBadRequest})
		return
	}

	patch, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	data, err := s.db.Update(r.Context(), table, id, patch)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondRaw(w, http.StatusOK, data)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	fn := mux.Vars(r)["fn"]

	args, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	data, err := s.db.Call(r.Context(), fn, args)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondRaw(w, http.StatusOK, data)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u, ok := s.tokens[bearer(r)]
	s.mu.Unlock()

	if !ok {
		s.respondJSON(w, http.StatusUnauthorized, map[string]any{
			"code":       http.StatusUnauthorized,
			"error_code": "bad_jwt",
			"msg":        "invalid JWT: unable to parse or verify signature",
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"id": u.id, "email": u.email, "aud": "authenticated"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "unsupported_grant_type",
			"error_description": "unsupported grant type",
		})
		return
	}

	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)

	s.mu.Lock()
	u, found := s.users[email]
	var token string
	if found && u.password == password {
		token = s.issueLocked(u)
	}
	s.mu.Unlock()

	if token == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid login credentials",
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   3600,
		"user":         map[string]any{"id": u.id, "email": u.email},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.tokens, bearer(r))
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func bearer(r *http.Request) string {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, err)
		return nil, false
	}

	body := map[string]any{}
	if len(data) > 0 {
		if err := s.codec.Unmarshal(data, &body); err != nil {
			s.respondRemote(w, &connection.RemoteError{Code: "PGRST102", Message: "Empty or invalid json", Status: http.StatusBadRequest})
			return nil, false
		}
	}
	return body, true
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	var remote *connection.RemoteError
	if errors.As(err, &remote) {
		s.respondRemote(w, remote)
		return
	}
	if errors.Is(err, constants.ErrEmptyPatch) || errors.Is(err, constants.ErrInvalidIdentifier) {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
}

func (s *Server) respondRemote(w http.ResponseWriter, e *connection.RemoteError) {
	status := e.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	s.respondJSON(w, status, e)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := s.codec.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		response = []byte(`{"message":"response encoding failed"}`)
	}
	s.respondRaw(w, status, response)
}

func (s *Server) respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
