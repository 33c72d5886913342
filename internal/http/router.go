package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects the handlers mounted by NewRouter. Nil handlers
// leave their routes unmounted.
type RouterConfig struct {
	Tokens     TokenParser
	Auth       *AuthHandler
	Users      *UserHandler
	OTP        *OTPHandler
	Rooms      *RoomHandler
	Bookings   *BookingHandler
	Stats      *StatsHandler
	Feed       *FeedHandler
	CORS       CORSOptions
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORS))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	requireAuth := RequireAuth(cfg.Tokens, logger)
	requireAdmin := RequireAdmin(logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			if cfg.Auth != nil {
				r.Post("/", cfg.Auth.Signup)
				r.Post("/login", cfg.Auth.Login)
				r.With(requireAuth).Get("/me", cfg.Auth.Me)
			}
			if cfg.Users != nil {
				r.With(requireAuth, requireAdmin).Get("/", cfg.Users.List)
				r.With(requireAuth).Get("/{id}", cfg.Users.Get)
				r.With(requireAuth).Put("/{id}", cfg.Users.Update)
				r.With(requireAuth).Put("/{id}/password", cfg.Users.ChangePassword)
				r.With(requireAuth, requireAdmin).Delete("/{id}", cfg.Users.Delete)
			}
		})

		if cfg.OTP != nil {
			r.Post("/mail/send-otp", cfg.OTP.Send)
			r.Post("/mail/verify-otp", cfg.OTP.Verify)
		}

		if cfg.Rooms != nil {
			r.Route("/rooms", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", cfg.Rooms.List)
				r.Get("/{id}", cfg.Rooms.Get)
				r.With(requireAdmin).Post("/", cfg.Rooms.Create)
				r.With(requireAdmin).Put("/{id}", cfg.Rooms.Update)
				r.With(requireAdmin).Delete("/{id}", cfg.Rooms.Delete)
			})
		}

		if cfg.Bookings != nil {
			r.Route("/bookings", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", cfg.Bookings.List)
				r.Post("/", cfg.Bookings.Create)
				r.With(requireAdmin).Get("/pending", cfg.Bookings.ListPending)
				if cfg.Feed != nil {
					r.With(requireAdmin).Get("/feed", cfg.Feed.Serve)
				}
				r.Get("/{id}", cfg.Bookings.Get)
				r.Put("/{id}", cfg.Bookings.Update)
				r.Delete("/{id}", cfg.Bookings.Delete)
				r.With(requireAdmin).Patch("/{id}/approve", cfg.Bookings.Approve)
				r.With(requireAdmin).Patch("/{id}/reject", cfg.Bookings.Reject)
			})
		}

		if cfg.Stats != nil {
			r.With(requireAuth, requireAdmin).Get("/stats/admin", cfg.Stats.Admin)
		}
	})

	return r
}
