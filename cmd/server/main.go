package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/PatriickRM/loan-banking-system/docs"
	"github.com/PatriickRM/loan-banking-system/internal/database"
	"github.com/PatriickRM/loan-banking-system/internal/handlers"
	mW "github.com/PatriickRM/loan-banking-system/internal/middleware"
	"github.com/PatriickRM/loan-banking-system/internal/scheduler"
	"github.com/PatriickRM/loan-banking-system/internal/services"
	"github.com/PatriickRM/loan-banking-system/internal/session"
)

// @title Loan Banking System API
// @version 1.0
// @description API for loan origination, amortization and repayment processing
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("scheduler.overdue_interval_hours", "SCHEDULER_OVERDUE_INTERVAL_HOURS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Loan Banking System API"
	docs.SwaggerInfo.Description = "API for loan origination, amortization and repayment processing"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerService := services.NewLoanLedgerService(db)
	iso20022Service := services.NewISO20022Service()
	authService := services.NewAuthService(db, redisClient)
	loanService := services.NewLoanService(db, ledgerService, iso20022Service)
	paymentService := services.NewPaymentService(db, redisClient, ledgerService)
	evaluationService := services.NewEvaluationService(db)
	qrService := services.NewQRService(db, redisClient)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Overdue sweep runs for the lifetime of the process
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweepInterval := time.Duration(viper.GetInt("scheduler.overdue_interval_hours")) * time.Hour
	go scheduler.NewOverdueSweeper(db, sweepInterval).Run(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/profile", authService.GetProfile)

			// Loan lifecycle
			r.Post("/loans", loanService.CreateLoan)
			r.Get("/loans/my", loanService.MyLoans)
			r.Get("/loans/{loanId}", loanService.GetLoan)
			r.Put("/loans/{loanId}/cancel", loanService.CancelLoan)

			// Repayments
			r.Post("/payments", paymentService.ProcessPayment)
			r.Get("/loans/{loanId}/payments", paymentService.ListPayments)
			r.Get("/loans/{loanId}/schedule", paymentService.GetSchedule)
			r.Get("/loans/{loanId}/charge", paymentService.GetCharge)
			r.Get("/payments/upcoming", paymentService.UpcomingPayments)

			// QR payment intents
			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/redeem", qrHandler.RedeemQR)

			// Back-office endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAnyRole(session.RoleAdmin, session.RoleAnalista))

				r.Get("/loans", loanService.ListLoans)
				r.Put("/loans/{loanId}/approve", loanService.ApproveLoan)
				r.Put("/loans/{loanId}/reject", loanService.RejectLoan)
				r.Put("/loans/{loanId}/disburse", loanService.DisburseLoan)

				r.Get("/payments/overdue", paymentService.OverduePayments)

				r.Post("/evaluations/loans/{loanId}", evaluationService.EvaluateLoan)
				r.Get("/evaluations/criteria", evaluationService.ListCriteria)

				// ISO 20022 endpoints
				r.Post("/iso20022/convert", iso20022Service.ConvertDisbursement)
				r.Post("/iso20022/settlement", iso20022Service.ProcessSettlement)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
