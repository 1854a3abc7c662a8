package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"exam-attempt-service/internal/config"
)

// NewSeedCmd loads the sample papers into Postgres so a fresh deployment is
// attemptable end to end. Real paper authoring happens in the content
// management system, not here.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample papers into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	for id, paper := range samplePapers() {
		data, err := json.Marshal(paper)
		if err != nil {
			return fmt.Errorf("marshal paper %s: %w", id, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO papers (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
			id, string(data),
		); err != nil {
			return fmt.Errorf("insert paper %s: %w", id, err)
		}
		log.Printf("seeded paper %s", id)
	}
	return nil
}
