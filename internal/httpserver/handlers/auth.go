package handlers

import (
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/utils"
)

const (
	callbackPath  = "/auth/callback"
	codeErrorPath = "/auth/auth-code-error"
)

// Login starts the provider sign-in. The PKCE verifier stays in a cookie
// scoped to /auth until the callback consumes it.
func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := utils.RequestOrigin(r, d.TrustProxy, d.PublicURL)
		next := SafeNext(r.URL.Query().Get("next"))
		callback := origin + callbackPath + "?next=" + url.QueryEscape(next)

		verifier := oauth2.GenerateVerifier()
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		target, err := ctrl.SignIn(callback, oauth2.S256ChallengeFromVerifier(verifier))
		if err != nil {
			d.Logger.Error("failed to start sign-in", logger.Error(err))
			writeState(w, http.StatusBadGateway, ctrl.Snapshot(), err)
			return
		}

		d.Sessions.Store().SetVerifier(w, verifier)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Callback completes the handshake: it trades the one-time code for a
// session, stores it in cookies and redirects to next. Every failure lands
// on the error page; the reason is only logged.
func Callback(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := utils.RequestOrigin(r, d.TrustProxy, d.PublicURL)
		errorURL := origin + codeErrorPath

		q := r.URL.Query()
		code := q.Get("code")
		if code == "" {
			http.Redirect(w, r, errorURL, http.StatusFound)
			return
		}
		next := SafeNext(q.Get("next"))

		store := d.Sessions.Store()
		verifier := store.Verifier(r)
		store.ClearVerifier(w)

		fail := func(reason string, err error) {
			// logger.Error(nil) is skipped by zap
			d.Logger.Warn("auth callback failed", logger.String("reason", reason), logger.Error(err))
			http.Redirect(w, r, errorURL, http.StatusFound)
		}

		if verifier == "" {
			fail("missing code verifier", nil)
			return
		}

		ctx := r.Context()
		if d.Store != nil {
			claimed, err := d.Store.ClaimCode(ctx, code)
			switch {
			case err != nil:
				d.Logger.Warn("code claim unavailable, relying on provider", logger.Error(err))
			case !claimed:
				fail("code already used", nil)
				return
			}
		}

		sess, err := d.Supabase.ExchangeCode(ctx, code, verifier)
		if err != nil {
			fail("code exchange failed", err)
			return
		}
		if err := store.Save(w, sess); err != nil {
			fail("session not stored", err)
			return
		}

		d.Logger.Info("user signed in", logger.String("user_id", sess.UserID))
		http.Redirect(w, r, origin+next, http.StatusFound)
	}
}

// Logout signs the user out remotely and clears the session cookies. The
// cookies are cleared even when the provider call fails.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl := newController(d, d.Sessions.ForRequest(w, r))
		defer ctrl.Close()

		if err := ctrl.SignOut(r.Context()); err != nil {
			writeState(w, http.StatusBadGateway, ctrl.Snapshot(), err)
			return
		}
		writeState(w, http.StatusOK, ctrl.Snapshot(), nil)
	}
}

// AuthCodeError is where failed handshakes land.
func AuthCodeError(_ deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Sign-in failed or the link has expired. Please sign in again.\n"))
	}
}
