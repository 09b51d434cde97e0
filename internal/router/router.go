// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"booking-payment-service/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRoutes builds the HTTP surface. ledgerHandler is nil when this process
// does not own the balance store.
func SetupRoutes(
	paymentHandler *handler.PaymentHandler,
	balanceHandler *handler.BalanceHandler,
	ledgerHandler *handler.LedgerHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Signature", "X-Timestamp", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/createpayment", paymentHandler.CreatePayment)
		r.Post("/updatepayment", paymentHandler.UpdatePayment)
		r.Get("/getpayment/{id}", paymentHandler.GetPayment)
		r.Get("/createbill/{id}", paymentHandler.CreateBill)

		r.Post("/createbalance/{userId}", balanceHandler.CreateBalance)
		r.Get("/UserCredit/{userId}", balanceHandler.GetUserCredit)
	})

	if ledgerHandler != nil {
		r.Route("/internal/ledger", func(r chi.Router) {
			r.Use(ledgerHandler.Authenticate)
			r.Post("/increase", ledgerHandler.Increase)
			r.Post("/decrease", ledgerHandler.Decrease)
			r.Get("/operations/{reference}", ledgerHandler.GetOperation)
			r.Get("/balances/{userId}", ledgerHandler.GetBalance)
			r.Post("/balances", ledgerHandler.CreateBalance)
		})
	}

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
