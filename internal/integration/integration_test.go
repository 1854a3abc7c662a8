package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"exam-attempt-service/internal/app"
	"exam-attempt-service/internal/domain"
	"exam-attempt-service/internal/infra/memory"
	pgstore "exam-attempt-service/internal/infra/postgres"
	pgmigrations "exam-attempt-service/internal/infra/postgres/migrations"
	redisinfra "exam-attempt-service/internal/infra/redis"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedPaper(t, ctx, pgURL, samplePaper())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	content := redisinfra.NewPaperCache(redisClient, pgstore.NewContentStore(pool), 5*time.Minute)
	gate := redisinfra.NewEntitlementCache(redisClient, memory.NewAllowAllGate(), time.Minute)
	attempts := pgstore.NewAttemptRepository(pool)
	service := app.NewAttemptService(attempts, content, gate, domain.ScoringConfig{MarksPerCorrect: 2, NegativeMark: 0.5})

	started, err := service.Start(ctx, "u1", "paper-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", started.TotalQuestions)
	}
	if started.RemainingSec == nil || *started.RemainingSec != 600 {
		t.Fatalf("expected full time remaining, got %v", started.RemainingSec)
	}

	if _, err := service.Start(ctx, "u1", "paper-1", nil); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected conflict on duplicate start, got %v", err)
	}

	// correct, wrong, unanswered
	one, zero := 1, 0
	if _, err := service.Answer(ctx, "u1", started.AttemptID, "q1", &one); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if _, err := service.Answer(ctx, "u1", started.AttemptID, "q2", &zero); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	// Re-answering the same question converges on the latest value.
	if _, err := service.Answer(ctx, "u1", started.AttemptID, "q1", &one); err != nil {
		t.Fatalf("re-answer q1: %v", err)
	}

	breakdown, err := service.Submit(ctx, "u1", started.AttemptID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if breakdown.Score != 1.5 {
		t.Fatalf("expected score 2 - 0.5 = 1.5, got %v", breakdown.Score)
	}
	if breakdown.Percent != 25 {
		t.Fatalf("expected 1.5/6 = 25 percent, got %v", breakdown.Percent)
	}

	if _, err := service.Submit(ctx, "u1", started.AttemptID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on resubmit, got %v", err)
	}

	view, err := service.Get(ctx, "u1", started.AttemptID, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != domain.StatusSubmitted || len(view.Breakdown) != 3 {
		t.Fatalf("unexpected submitted view: %+v", view)
	}
	if view.Breakdown[2].SelectedIndex != nil || view.Breakdown[2].Correct {
		t.Fatalf("expected q3 unanswered, got %+v", view.Breakdown[2])
	}

	// After submission the active slot is free again.
	if _, err := service.Start(ctx, "u1", "paper-1", nil); err != nil {
		t.Fatalf("start after submit: %v", err)
	}
}

func TestDuplicateStartBlockedByConstraint(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	seedPaper(t, ctx, pgURL, samplePaper())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	repo := pgstore.NewAttemptRepository(pool)

	// Two inserts for the same (user, paper) straight at the repository,
	// bypassing the service's advisory pre-check: the partial unique index
	// must reject the second one.
	first := sampleAttempt()
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}
	second := sampleAttempt()
	if err := repo.Create(ctx, second); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected conflict from unique index, got %v", err)
	}

	// Once the first is finalized the constraint no longer applies.
	fin := domain.Finalization{Score: 0, SubmittedAt: time.Now().UTC(), DurationSec: 5}
	if err := repo.Finalize(ctx, first.ID, fin); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := repo.Create(ctx, sampleAttempt()); err != nil {
		t.Fatalf("create after finalize: %v", err)
	}
}

func sampleAttempt() domain.Attempt {
	return domain.Attempt{
		ID:      uuid.NewString(),
		UserID:  "u1",
		PaperID: "paper-1",
		Status:  domain.StatusInProgress,
		Snapshot: []domain.QuestionSnapshot{
			{QuestionID: "q1", Text: "stub", Options: []domain.OptionSnapshot{{Text: "a"}}, CorrectIndex: 0},
		},
		TotalQuestions: 1,
		Scoring:        domain.ScoringConfig{MarksPerCorrect: 1},
		StartedAt:      time.Now().UTC(),
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedPaper(t *testing.T, ctx context.Context, dsn string, paper domain.Paper) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(paper)
	if err != nil {
		t.Fatalf("marshal paper: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO papers (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, paper.ID, string(data)); err != nil {
		t.Fatalf("insert paper: %v", err)
	}
}

func samplePaper() domain.Paper {
	return domain.Paper{
		ID:          "paper-1",
		Title:       "Integration Mock",
		DurationSec: 600,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", Correct: true},
					{Text: "5"},
				},
			},
			{
				ID:   "q2",
				Text: "Red planet?",
				Options: []domain.Option{
					{Text: "Venus"},
					{Text: "Mars", Correct: true},
				},
			},
			{
				ID:   "q3",
				Text: "Largest ocean?",
				Options: []domain.Option{
					{Text: "Atlantic"},
					{Text: "Pacific", Correct: true},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
