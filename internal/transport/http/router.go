package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/app"
)

// NewRouter mounts the game API, the player websocket and the ops endpoints.
func NewRouter(service *app.GameService, ws *WSHandler, gatherer prometheus.Gatherer, log logrus.FieldLogger) http.Handler {
	games := NewGameHandler(service, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/game", func(r chi.Router) {
		r.Post("/create", games.Create)
		r.Get("/session/{code}", games.Session)
		r.Post("/start-question", games.StartQuestion)
		r.Post("/finish-question", games.FinishQuestion)
		r.Post("/finish-game", games.FinishGame)
		r.Get("/results/{code}", games.Results)

		r.Get("/current-question/{code}", games.CurrentQuestion)
		r.Get("/leaderboard/{code}", games.Leaderboard)
		r.Get("/ws/{code}/{nickname}", ws.ServeWS)
	})
	return r
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
