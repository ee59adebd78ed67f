package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ksmithweb/campusmarket-backend/api/controllers"
	webhookcontrollers "github.com/ksmithweb/campusmarket-backend/api/controllers/webhooks"
	"github.com/ksmithweb/campusmarket-backend/api/middleware"
	"github.com/ksmithweb/campusmarket-backend/internal/notifications"
	"github.com/ksmithweb/campusmarket-backend/internal/users"
	stripewebhook "github.com/ksmithweb/campusmarket-backend/internal/webhooks/stripe"
	"github.com/ksmithweb/campusmarket-backend/pkg/config"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
	"github.com/ksmithweb/campusmarket-backend/pkg/stripe"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Config               *config.Config
	Logger               *logger.Logger
	BidService           controllers.BidService
	CheckoutService      controllers.CheckoutService
	NotificationsService notifications.Service
	UserRepo             users.Repository
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
	MetricsGatherer      prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})

	if d.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhookService, d.StripeClient, d.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/bids", func(r chi.Router) {
			r.Post("/", controllers.CreateBid(d.BidService, logg))
			r.Get("/mine", controllers.ListMyBids(d.BidService, logg))
			r.Post("/{bidID}/counter", controllers.CounterBid(d.BidService, logg))
			r.Post("/{bidID}/status", controllers.UpdateBidStatus(d.BidService, logg))
			r.Post("/{bidID}/accept", controllers.AcceptBid(d.BidService, logg))
			r.Post("/{bidID}/checkout", controllers.CheckoutBid(d.CheckoutService, logg))
		})

		r.Route("/listings/{listingID}", func(r chi.Router) {
			r.Get("/bids", controllers.ListListingBids(d.BidService, logg))
			r.Get("/bids/count", controllers.ListingBidCount(d.BidService, logg))
			r.Post("/finalize-bidding", controllers.FinalizeBidding(d.BidService, logg))
		})

		r.Get("/me", controllers.Me(d.UserRepo, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/checkout", controllers.CheckoutCart(d.CheckoutService, logg))
			r.Post("/{orderID}/checkout", controllers.CheckoutOrderRetry(d.CheckoutService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.NotificationsService, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(d.NotificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.NotificationsService, logg))
		})
	})

	return r
}
