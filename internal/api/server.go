// Package api exposes the marketplace operations over HTTP.
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/metrics"
	"github.com/safar/petplace/internal/notify"
	"github.com/safar/petplace/internal/payment"
	"github.com/safar/petplace/internal/upload"
)

type Server struct {
	db       *sql.DB
	rules    config.Rules
	app      config.AppConfig
	notifier notify.Sender
	uploader upload.Uploader
	gateway  payment.Gateway
	logger   *zap.Logger
}

type Deps struct {
	DB       *sql.DB
	Rules    config.Rules
	App      config.AppConfig
	Notifier notify.Sender
	Uploader upload.Uploader
	Gateway  payment.Gateway
	Logger   *zap.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		db:       d.DB,
		rules:    d.Rules,
		app:      d.App,
		notifier: d.Notifier,
		uploader: d.Uploader,
		gateway:  d.Gateway,
		logger:   logger,
	}
}

// Routes builds the router. limiter may be nil to disable rate limiting.
func (s *Server) Routes(limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/webhooks/payments", s.handlePaymentWebhook)
	r.Get("/p/{token}", s.handlePetCard)

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/", s.handleListUsers)
			r.Get("/{userID}", s.handleGetUser)
			r.Put("/{userID}/position", s.handleUpdatePosition)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", s.handleCreateProduct)
			r.Get("/", s.handleListProducts)
			r.Get("/{productID}", s.handleGetProduct)
			r.Put("/{productID}/stock", s.handleRestockProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.handleGetCart)
			r.Delete("/", s.handleClearCart)
			r.Post("/items", s.handleAddCartItem)
			r.Put("/items/{productID}", s.handleUpdateCartItem)
			r.Delete("/items/{productID}", s.handleRemoveCartItem)
			r.Post("/checkout", s.handleCheckout)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handleCreateOrder)
			r.Get("/", s.handleListOrders)
			r.Get("/{orderID}", s.handleGetOrder)
			r.Post("/{orderID}/cancel", s.handleCancelOrder)
			r.Post("/{orderID}/payments", s.handleStartPayment)
		})

		r.Route("/professionals", func(r chi.Router) {
			r.Post("/", s.handleCreateProfessional)
			r.Get("/nearby", s.handleNearestProfessionals)
			r.Route("/{professionalID}", func(r chi.Router) {
				r.Post("/subscription", s.handleStartSubscription)
				r.Post("/locations", s.handleCreateLocation)
				r.Get("/locations", s.handleListLocations)
				r.Put("/locations/{locationID}/primary", s.handleSetPrimaryLocation)
				r.Post("/staff", s.handleAddStaff)
				r.Get("/staff", s.handleListStaff)
				r.Get("/shifts", s.handleListShifts)
				r.Post("/commissions", s.handleCalculateCommission)
				r.Get("/commissions", s.handleListCommissions)
				r.Get("/balance", s.handlePendingBalance)
				r.Post("/payouts", s.handleCreatePayout)
				r.Get("/payouts", s.handleListPayouts)
			})
		})

		r.Post("/staff/{staffID}/shifts", s.handleScheduleShift)
		r.Post("/commissions/{commissionID}/approve", s.handleApproveCommission)
		r.Post("/payouts/{payoutID}/complete", s.handleCompletePayout)

		r.Route("/pets", func(r chi.Router) {
			r.Post("/", s.handleCreatePet)
			r.Get("/", s.handleListPets)
			r.Get("/{petID}", s.handleGetPet)
			r.Post("/{petID}/token", s.handleEnsurePublicToken)
			r.Post("/{petID}/exams", s.handleCreateExam)
			r.Get("/{petID}/exams", s.handleListExams)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", s.handleCreateAlert)
			r.Get("/nearby", s.handleNearbyAlerts)
			r.Post("/{alertID}/found", s.handleReportFound)
			r.Post("/{alertID}/resolve", s.handleResolveAlert)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.handleStartConversation)
			r.Get("/", s.handleListConversations)
			r.Get("/unread", s.handleUnreadCount)
			r.Post("/{conversationID}/messages", s.handleSendMessage)
			r.Get("/{conversationID}/messages", s.handleListMessages)
			r.Post("/{conversationID}/read", s.handleMarkRead)
		})

		r.Route("/insurance", func(r chi.Router) {
			r.Post("/policies", s.handleCreatePolicy)
			r.Get("/policies/{policyID}", s.handleGetPolicy)
			r.Get("/policies/{policyID}/coverage", s.handleVerifyCoverage)
			r.Post("/claims", s.handleCreateClaim)
			r.Post("/claims/{claimID}/submit", s.handleSubmitClaim)
			r.Post("/preauthorizations", s.handleCreatePreAuth)
		})

		r.Route("/ads", func(r chi.Router) {
			r.Post("/campaigns", s.handleCreateCampaign)
			r.Get("/campaigns/eligible", s.handleEligibleCampaigns)
			r.Get("/campaigns/{campaignID}", s.handleGetCampaign)
			r.Put("/campaigns/{campaignID}/status", s.handleSetCampaignStatus)
			r.Post("/campaigns/{campaignID}/impressions", s.handleRecordImpression)
			r.Post("/campaigns/{campaignID}/clicks", s.handleRecordClick)
		})
	})

	if s.app.UploadDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(s.app.UploadDir))))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
