// Package httpapi exposes the access core to its collaborators: the
// message-envelope dispatch and event long-poll the smart-home worker
// speaks, and the delegation endpoints the messenger frontend uses.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/logging"
)

type Server struct {
	addr            string
	core            *access.Core
	bus             *Bus
	jwtSecret       []byte
	sharedSecret    string
	sessionValidity time.Duration
	log             logging.Logger
}

func NewServer(addr string, core *access.Core, bus *Bus, sharedSecret, jwtSecret string, sessionValidity time.Duration, log logging.Logger) *Server {
	return &Server{
		addr:            addr,
		core:            core,
		bus:             bus,
		jwtSecret:       []byte(jwtSecret),
		sharedSecret:    sharedSecret,
		sessionValidity: sessionValidity,
		log:             log.With("module", "http_server"),
	}
}

// Router assembles the chi handler tree. Everything except the session
// endpoint requires a peer session token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/session", s.handleSession)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/v1/message", s.handleMessage)
		r.Get("/api/v1/events", s.handleEvents)
		r.Post("/api/v1/otp", s.handleOTPRequest)
		r.Get("/api/v1/idcard", s.handleIDCard)

		r.Route("/api/v1/users/{userID}", func(r chi.Router) {
			r.Get("/followers", s.handleListFollowers)
			r.Get("/sponsors", s.handleListSponsors)
			r.Post("/followers", s.handleAddFollower)
			r.Delete("/followers/{followerID}", s.handleRevokeFollower)
		})
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info(ctx, "Starting HTTP server", "address", s.addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
