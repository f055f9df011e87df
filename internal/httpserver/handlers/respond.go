package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/controller"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/sources/homepage"
)

// stateResponse is the body of every /api and /auth/logout answer.
// Bookmarks shadows the embedded list: it is left out when the request never
// fetched it, so a client keeps the list it already shows.
type stateResponse struct {
	controller.State
	Bookmarks *[]domain.Bookmark `json:"bookmarks,omitempty"`
	Error     string             `json:"error,omitempty"`
	Imported  *int               `json:"imported,omitempty"`
}

func newStateResponse(s controller.State, listed bool, err error) stateResponse {
	resp := stateResponse{State: s}
	if listed {
		list := s.Bookmarks
		if list == nil {
			list = []domain.Bookmark{}
		}
		resp.Bookmarks = &list
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeState answers with the full state, list included.
func writeState(w http.ResponseWriter, status int, s controller.State, err error) {
	writeJSON(w, status, newStateResponse(s, true, err))
}

// writeOutcome answers a write whose list was not refetched. The body has no
// bookmarks field.
func writeOutcome(w http.ResponseWriter, status int, s controller.State, err error) {
	writeJSON(w, status, newStateResponse(s, false, err))
}

// statusFor maps sentinel errors to HTTP statuses. Anything unknown came
// from the backend.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, homepage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// newController builds a controller acting through sessions. Live
// subscriptions are opt-in through extra options.
func newController(d deps.Deps, sessions controller.Sessions, extra ...controller.Option) *controller.Controller {
	opts := []controller.Option{
		controller.WithAuth(d.Supabase),
		controller.WithSignIn(d.Supabase, d.AuthProvider),
	}
	if d.Store != nil {
		opts = append(opts, controller.WithPublisher(d.Store))
	}
	opts = append(opts, extra...)
	return controller.New(d.Supabase, sessions, d.Logger, opts...)
}
