package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nickzitzer/pulseplus-economy/internal/metrics"
)

func NewRouter(svc EconomyService) http.Handler {
	hp := NewHandlerProvider(svc)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", hp.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/competitors/{id}", func(r chi.Router) {
		r.Get("/balance", hp.GetBalance)
		r.Get("/history", hp.GetHistory)
		r.Post("/daily-reward", hp.ClaimDailyReward)
	})

	r.Post("/transfers", hp.Transfer)

	r.Post("/shops", hp.CreateShop)
	r.Post("/shops/{shopID}/items", hp.AddItem)
	r.Patch("/items/{itemID}/availability", hp.SetItemAvailability)

	r.Post("/purchases", hp.Purchase)
	r.Post("/inventory/{grantID}/use", hp.UseItem)

	r.Post("/trades", hp.CreateTrade)
	r.Post("/trades/{tradeID}/respond", hp.RespondToTrade)
	r.Post("/trades/{tradeID}/cancel", hp.CancelTrade)

	return r
}
