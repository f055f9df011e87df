package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/sources/homepage"
)

const maxJSONBody = 64 << 10

type createRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Session reports who is signed in and, if anyone, their bookmarks. Being
// signed out is a valid state, not an error.
func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		err := ctrl.Initialize(r.Context())
		writeState(w, statusFor(err), ctrl.Snapshot(), err)
	}
}

// ListBookmarks returns the caller's bookmarks, newest first.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		err := ctrl.Initialize(r.Context())
		state := ctrl.Snapshot()
		if err == nil && state.User == nil {
			err = domain.ErrNoSession
		}
		writeState(w, statusFor(err), state, err)
	}
}

// CreateBookmark inserts {url, title} for the caller and answers with the
// refetched list. Failed attempts answer without a list.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		var req createRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			err = fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err)
			writeOutcome(w, http.StatusBadRequest, ctrl.Snapshot(), err)
			return
		}
		// Blank inputs touch neither the session nor the backend.
		if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Title) == "" {
			writeOutcome(w, http.StatusBadRequest, ctrl.Snapshot(), domain.ErrInvalidInput)
			return
		}

		ctx := r.Context()
		if err := ctrl.Resume(ctx); err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}

		ctrl.SetInputs(req.URL, req.Title)
		if err := ctrl.Create(ctx); err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}
		writeState(w, http.StatusCreated, ctrl.Snapshot(), nil)
	}
}

// DeleteBookmark removes one of the caller's bookmarks. A rejected delete
// answers without a list: nothing changed.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		ctx := r.Context()
		if err := ctrl.Resume(ctx); err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}
		if err := ctrl.Delete(ctx, chi.URLParam(r, "id")); err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}
		writeState(w, http.StatusOK, ctrl.Snapshot(), nil)
	}
}

// ImportBookmarks reads a Homepage bookmarks.yaml (or services.yaml) body and
// inserts every entry for the caller. It stops at the first failed insert.
func ImportBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		ctx := r.Context()
		if err := ctrl.Resume(ctx); err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}

		inputs, err := homepage.Read(r.Body, d.ImportMaxBytes)
		if err != nil {
			writeOutcome(w, statusFor(err), ctrl.Snapshot(), err)
			return
		}

		// The list is refetched only when something was inserted.
		n, err := ctrl.Import(ctx, inputs)
		status := http.StatusCreated
		if err != nil {
			status = statusFor(err)
		}
		resp := newStateResponse(ctrl.Snapshot(), n > 0, err)
		resp.Imported = &n
		writeJSON(w, status, resp)
	}
}
