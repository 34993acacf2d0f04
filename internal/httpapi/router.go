// Package httpapi serves the app-facing HTTP API and mounts the push channel
// and assistant proxy.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/posts"
	"github.com/matheus3301/detox/internal/push"
)

// DegradedHeader is set to "true" on responses built from the fallback set.
const DegradedHeader = "X-Detox-Degraded"

// Deps are the collaborators the router serves from.
type Deps struct {
	Backend   domain.Backend
	Identity  *messaging.IdentityResolver
	Contacts  *messaging.ContactLoader
	Hub       *push.Hub
	Posts     *posts.Service
	Assistant http.Handler
	Policy    messaging.Policy
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string
	Log         *zap.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	h := &handlers{deps: d, log: d.Log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", DegradedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.listUsers)
			r.Get("/me", h.currentUser)
			r.Put("/me/online", h.setOnline)
		})
		r.Get("/contacts", h.listContacts)
		r.Route("/messages", func(r chi.Router) {
			r.Get("/{userId}", h.conversation)
			r.Post("/", h.sendMessage)
		})
		if d.Posts != nil {
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", h.listPosts)
				r.Post("/", h.addPost)
				r.Put("/{postId}", h.updatePost)
				r.Delete("/{postId}", h.deletePost)
				r.Post("/{postId}/like", h.likePost)
			})
		}
		if d.Assistant != nil {
			r.Post("/chat", d.Assistant.ServeHTTP)
		}
	})

	if d.Hub != nil {
		r.Get("/ws", d.Hub.ServeHTTP)
	}
	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
