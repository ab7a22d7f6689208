package httpx

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderActorRole  = "X-Actor-Role"
	HeaderActorID    = "X-Actor-Id"
	HeaderActorEmail = "X-Actor-Email"
)

func NewRouter(logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(actorContext)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type actorKey struct{}

// actorContext trusts the identity headers set by the gateway in front of
// this service. A request without them acts as a guest.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := orders.Actor{
			Kind:  orders.ActorUser,
			ID:    strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Email: strings.TrimSpace(r.Header.Get(HeaderActorEmail)),
		}
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderActorRole)), string(orders.ActorAdmin)) {
			a.Kind = orders.ActorAdmin
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

func ActorFrom(ctx context.Context) orders.Actor {
	if a, ok := ctx.Value(actorKey{}).(orders.Actor); ok {
		return a
	}
	return orders.Actor{Kind: orders.ActorUser}
}
