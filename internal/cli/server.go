package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"exam-attempt-service/internal/app"
	"exam-attempt-service/internal/config"
	"exam-attempt-service/internal/domain"
	"exam-attempt-service/internal/infra/memory"
	pgstore "exam-attempt-service/internal/infra/postgres"
	redisinfra "exam-attempt-service/internal/infra/redis"
	transport "exam-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var content app.ContentStore
	if pool != nil {
		content = pgstore.NewContentStore(pool)
	} else {
		content = memory.NewStaticContentStore(samplePapers())
	}
	if redisClient != nil {
		contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
		content = redisinfra.NewPaperCache(redisClient, content, contentTTL)
	}

	// Entitlement checks belong to the subscription service; without one
	// wired in, every user may attempt every paper.
	var gate app.AccessGate = memory.NewAllowAllGate()
	if redisClient != nil {
		entitlementTTL := config.TTLDuration(cfg.Redis.TTL, time.Minute)
		gate = redisinfra.NewEntitlementCache(redisClient, gate, entitlementTTL)
	}

	var attempts app.AttemptRepository
	if pool != nil {
		attempts = pgstore.NewAttemptRepository(pool)
	} else {
		attempts = memory.NewAttemptRepository()
	}

	defaults := domain.ScoringConfig{
		MarksPerCorrect: cfg.Scoring.MarksPerCorrect,
		NegativeMark:    cfg.Scoring.NegativeMark,
	}
	service := app.NewAttemptService(attempts, content, gate, defaults)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(service).Register(mux)
	mux.HandleFunc("/attempts/ws", transport.NewWSHandler(service).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// samplePapers keeps the service runnable without a database.
func samplePapers() map[string]domain.Paper {
	return map[string]domain.Paper{
		"paper-1": {
			ID:          "paper-1",
			Title:       "General Aptitude Mock 1",
			Subject:     "aptitude",
			DurationSec: 600,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
						{Text: "22"},
					},
				},
				{
					ID:   "q2",
					Text: "Which planet is known as the Red Planet?",
					Options: []domain.Option{
						{Text: "Venus"},
						{Text: "Jupiter"},
						{Text: "Mars", Correct: true},
						{Text: "Saturn"},
					},
				},
			},
		},
	}
}
