package main

import (
	"net/http"

	"github.com/AdamBeresnev/rack-ladder/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	var limiter *middleware.IPRateLimiter
	if app.cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewIPRateLimiter(rate.Limit(app.cfg.HTTP.RateLimit), app.cfg.HTTP.RateBurst)
	}

	// Reads
	r.Get("/players", app.listPlayers)
	r.Get("/players/{id}", app.getPlayer)
	r.Get("/players/{id}/ratings", app.ratingHistory)
	r.Get("/players/{id}/challenges", app.listPlayerChallenges)
	r.Get("/challenges/{id}", app.getChallenge)
	r.Get("/tournaments", app.listTournaments)
	r.Get("/tournaments/{ref}", app.getTournament)

	// Writes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))

		r.Post("/players", app.registerPlayer)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePlayer)

			r.Post("/challenges", app.createChallenge)
			r.Post("/challenges/{id}/accept", app.acceptChallenge)
			r.Post("/challenges/{id}/decline", app.declineChallenge)
			r.Post("/challenges/{id}/racks", app.reportRack)
			r.Post("/challenges/{id}/confirm", app.confirmResult)

			r.Post("/tournaments", app.createTournament)
			r.Post("/matches/{id}/advance", app.advanceMatch)
		})
	})

	return r
}
