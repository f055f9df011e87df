// Package supabasetest runs an in-process stand-in for the parts of a
// Supabase project this service talks to: the GoTrue token/logout endpoints
// and the PostgREST bookmarks table with an owner-only row policy.
package supabasetest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// JWTSecret signs every access token the server issues.
const JWTSecret = "supabasetest-secret-supabasetest-secret"

// AnonKey is accepted as the project's public key.
const AnonKey = "supabasetest-anon-key"

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	emails    map[string]string // user id -> email
	codes     map[string]pendingCode
	access    map[string]string // access token -> user id
	refresh   map[string]string // refresh token -> user id
	rows      []domain.Bookmark
	hits      map[string]int
	epoch     time.Time
	seq       int
	tokenTTL  time.Duration
	failLists bool
}

type pendingCode struct {
	userID   string
	verifier string
}

// New starts a server that is closed when t ends.
func New(t testing.TB) *Server {
	s := &Server{
		emails:   map[string]string{},
		codes:    map[string]pendingCode{},
		access:   map[string]string{},
		refresh:  map[string]string{},
		hits:     map[string]int{},
		epoch:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		tokenTTL: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", s.handleToken)
	mux.HandleFunc("/auth/v1/logout", s.handleLogout)
	mux.HandleFunc("/rest/v1/bookmarks", s.handleBookmarks)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.emails[id] = email
	return id
}

// IssueCode returns a one-time authorization code for userID bound to verifier.
func (s *Server) IssueCode(userID, verifier string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := uuid.NewString()
	s.codes[code] = pendingCode{userID: userID, verifier: verifier}
	return code
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// FailLists makes every select answer with a server error.
func (s *Server) FailLists(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLists = fail
}

// Login issues a session without going through a code.
func (s *Server) Login(userID string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.issueLocked(userID)
	return sess.AccessToken, sess.RefreshToken
}

// Seed inserts rows as if another client had written them.
func (s *Server) Seed(userID, url, title string) domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(domain.BookmarkInput{URL: url, Title: title, UserID: userID})
}

// Rows returns a copy of the table.
func (s *Server) Rows() []domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Bookmark(nil), s.rows...)
}

// Hits counts requests by "METHOD /path".
func (s *Server) Hits(methodAndPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[methodAndPath]
}

type tokenSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (s *Server) issueLocked(userID string) tokenSession {
	exp := time.Now().Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": s.emails[userID],
		"aud":   "authenticated",
		"role":  "authenticated",
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()
	s.access[access] = userID
	s.refresh[refresh] = userID

	out := tokenSession{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokenTTL.Seconds()),
		ExpiresAt:    exp.Unix(),
	}
	out.User.ID = userID
	out.User.Email = s.emails[userID]
	return out
}

func (s *Server) insertLocked(in domain.BookmarkInput) domain.Bookmark {
	s.seq++
	row := domain.Bookmark{
		ID:        uuid.NewString(),
		URL:       in.URL,
		Title:     in.Title,
		UserID:    in.UserID,
		CreatedAt: s.epoch.Add(time.Duration(s.seq) * time.Second),
	}
	s.rows = append(s.rows, row)
	return row
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("apikey") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No API key found in request"})
		return
	}

	var body struct {
		Code         string `json:"code"`
		CodeVerifier string `json:"code_verifier"`
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "pkce":
		pending, ok := s.codes[body.Code]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid_grant", "error_description": "invalid flow state, no valid flow state found"})
			return
		}
		delete(s.codes, body.Code)
		if pending.verifier != body.CodeVerifier {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_grant", "error_description": "code challenge does not match previously saved code verifier"})
			return
		}
		writeJSON(w, http.StatusOK, s.issueLocked(pending.userID))

	case "refresh_token":
		userID, ok := s.refresh[body.RefreshToken]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token: Refresh Token Not Found"})
			return
		}
		delete(s.refresh, body.RefreshToken)
		writeJSON(w, http.StatusOK, s.issueLocked(userID))

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.userLocked(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid JWT"})
		return
	}
	for rt, owner := range s.refresh {
		if owner == userID {
			delete(s.refresh, rt)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.userLocked(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, pgError("PGRST301", "JWT expired"))
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if s.failLists {
			writeJSON(w, http.StatusInternalServerError, pgError("XX000", "database is unavailable"))
			return
		}
		s.selectLocked(w, r, userID)
	case http.MethodPost:
		s.createLocked(w, r, userID)
	case http.MethodDelete:
		s.deleteLocked(w, r, userID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) selectLocked(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	out := make([]domain.Bookmark, 0)
	for _, row := range s.rows {
		// Row policy: owners only.
		if row.UserID != userID {
			continue
		}
		if f := q.Get("user_id"); f != "" && f != "eq."+row.UserID {
			continue
		}
		out = append(out, row)
	}
	if strings.HasPrefix(q.Get("order"), "created_at.desc") {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createLocked(w http.ResponseWriter, r *http.Request, userID string) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, pgError("PGRST102", "Empty or invalid json"))
		return
	}

	var inputs []domain.BookmarkInput
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			writeJSON(w, http.StatusBadRequest, pgError("PGRST102", "Empty or invalid json"))
			return
		}
	} else {
		var in domain.BookmarkInput
		if err := json.Unmarshal(raw, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, pgError("PGRST102", "Empty or invalid json"))
			return
		}
		inputs = append(inputs, in)
	}

	for _, in := range inputs {
		if in.UserID != userID {
			writeJSON(w, http.StatusForbidden, pgError("42501", `new row violates row-level security policy for table "bookmarks"`))
			return
		}
		if in.URL == "" || in.Title == "" {
			writeJSON(w, http.StatusBadRequest, pgError("23502", `null value in column "url" of relation "bookmarks" violates not-null constraint`))
			return
		}
	}

	out := make([]domain.Bookmark, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, s.insertLocked(in))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) deleteLocked(w http.ResponseWriter, r *http.Request, userID string) {
	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, pgError("22P02", fmt.Sprintf(`invalid input syntax for type uuid: "%s"`, id)))
		return
	}

	deleted := make([]domain.Bookmark, 0, 1)
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.ID == id && row.UserID == userID {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) userLocked(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userID, ok := s.access[token]
	return userID, ok
}

func pgError(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message, "details": "", "hint": ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
