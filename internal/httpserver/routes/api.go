package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

func init() { Register(registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))

		// The event stream outlives any request timeout.
		r.Get("/bookmarks/events", handlers.BookmarkEvents(d))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))

			r.Get("/session", handlers.Session(d))
			r.Get("/bookmarks", handlers.ListBookmarks(d))
			r.Post("/bookmarks", handlers.CreateBookmark(d))
			r.Post("/bookmarks/import", handlers.ImportBookmarks(d))
			r.Delete("/bookmarks/{id}", handlers.DeleteBookmark(d))
		})
	})
}
