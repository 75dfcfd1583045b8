package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/auth"
)

// RouterOptions carries the knobs of the HTTP surface.
type RouterOptions struct {
	CORSOrigins  []string
	DefaultLimit int
}

// NewRouter wires the ranking endpoints, the live feed and the health probe.
func NewRouter(service *app.RankingService, verifier *auth.Verifier, logger *zap.Logger, opts RouterOptions) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	rankings := NewRankingHandler(service, logger, opts.DefaultLimit)
	ws := NewWSHandler(service, logger, opts.DefaultLimit)

	r := mux.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(verifier.Middleware(logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cards/{cardID}/ranking", rankings.GetRanking).Methods(http.MethodGet)
	api.HandleFunc("/cards/{cardID}/attempts", rankings.PostAttempts).Methods(http.MethodPost)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
