// Package fakeserver is an in-memory backend speaking the same REST and
// live-channel contract as the production server. It backs end-to-end
// tests and local development.
package fakeserver

import (
	"net/http"

	"github.com/dimitrije/snapbook/internal/api"
	"github.com/dimitrije/snapbook/internal/hub"
	authmw "github.com/dimitrije/snapbook/internal/middleware"
	"github.com/dimitrije/snapbook/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

type Server struct {
	store   *Store
	hub     *hub.Hub
	jwt     *services.JWTService
	handler http.Handler
}

// New wires the routes. The hub must be running.
func New(store *Store, h *hub.Hub, jwtService *services.JWTService, release bool) *Server {
	s := &Server{store: store, hub: h, jwt: jwtService}

	app := drift.New()
	if release {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", api.AuthHeader, api.ConnectionHeader},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	apiGroup := app.Group("/api")

	auth := apiGroup.Group("/auth")
	auth.Post("/login", s.Login)
	auth.Post("/register", s.Register)

	apiGroup.Post("/file/delete", s.DeleteFile)

	protected := apiGroup.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Get("/users/me", s.GetMe)
	protected.Put("/users/me", s.UpdateMe)
	protected.Get("/users/search", s.SearchUsers)

	protected.Get("/scrapbooks", s.ListScrapbooks)
	protected.Post("/scrapbooks", s.CreateScrapbook)
	protected.Get("/scrapbooks/:id", s.GetScrapbook)
	protected.Delete("/scrapbooks/:id", s.DeleteScrapbook)
	protected.Get("/scrapbooks/:id/timeline", s.GetTimeline)
	protected.Put("/scrapbooks/:id/title", s.UpdateTitle)
	protected.Post("/scrapbooks/:id/items", s.AddItem)
	protected.Delete("/scrapbooks/:id/items/:itemId", s.RemoveItem)
	protected.Post("/scrapbooks/:id/collaborators", s.AddCollaborator)
	protected.Delete("/scrapbooks/:id/collaborators/:collaboratorId", s.RemoveCollaborator)

	app.Get("/health", func(c *drift.Context) {
		_ = c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	app.Get("/ws", s.Connect)

	// Multipart uploads and raw file bodies bypass the JSON body parser.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/file/upload", s.Upload)
	mux.HandleFunc("GET "+filesPrefix+"{key}", s.ServeFile)
	mux.Handle("/", app)
	s.handler = mux

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
