//go:build integration

package source

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
)

const postgresSchema = `CREATE TABLE asterisk.cdr (
	cdr_id SERIAL PRIMARY KEY,
	calldate TIMESTAMP NOT NULL,
	clid TEXT, source TEXT, src TEXT, dst TEXT, destination TEXT,
	dcontext TEXT, channel TEXT, dstchannel TEXT, lastapp TEXT, lastdata TEXT,
	duration INTEGER, billsec INTEGER, disposition TEXT, amaflags INTEGER
)`

// Run with: go test -tags integration ./internal/source/
func TestPostgresFetch(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pbx"),
		postgres.WithUsername("pbx"),
		postgres.WithPassword("pbx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	s, err := Open(ctx, config.QueryDriverPostgres, dsn, "asterisk.cdr", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, stmt := range []string{
		`CREATE SCHEMA asterisk`,
		postgresSchema,
		`INSERT INTO asterisk.cdr (calldate, src, dst, destination, disposition, duration, billsec) VALUES
			('2025-10-31 16:39:00', '5551234', '101', '101', 'ANSWERED', 30, 30),
			('2025-10-31 09:05:00', '5559876', '102', NULL, 'NO ANSWER', 10, 0),
			('2025-11-01 09:40:00', '5551234', '101', '101', 'BUSY', 4, 0)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to prepare table: %v", err)
		}
	}

	ds, err := s.Fetch(ctx, Query{
		From:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		Source: "5559876",
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(ds.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(ds.Rows))
	}

	recs, err := cdr.NormalizeDataset(ds)
	if err != nil {
		t.Fatalf("NormalizeDataset returned error: %v", err)
	}
	if recs[0].CallDate != "31/10/25, 09:05" || recs[0].Destination != "102" || recs[0].Disposition != "NO ANSWER" {
		t.Errorf("unexpected record %+v", recs[0])
	}
	if recs[0].Duration != "10" {
		t.Errorf("expected integer duration as text, got %q", recs[0].Duration)
	}
}
