package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdrgen"
	"github.com/dennisdiepolder/monti/cdrinsight/pkg/client"
)

func main() {
	defaults := cdrgen.DefaultConfig()

	// CLI flags
	var (
		count      = flag.Int("count", defaults.Count, "Number of calls to generate")
		start      = flag.String("start", defaults.Start.Format("2006-01-02"), "First day (YYYY-MM-DD)")
		days       = flag.Int("days", defaults.Days, "Number of days to spread calls over")
		seed       = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		dests      = flag.String("destinations", "", "Comma separated destinations, optionally weighted as ext:weight")
		peakFactor = flag.Float64("peak-factor", defaults.PeakHourFactor, "Load multiplier for peak hours")
		out        = flag.String("out", "-", "Write the JSON dataset to this file (- for stdout)")
		sqlitePath = flag.String("sqlite", "", "Seed a sqlite database instead of writing JSON")
		table      = flag.String("table", "cdr", "Table name for -sqlite")
		postURL    = flag.String("post", "", "Upload the dataset to a running server (e.g. http://localhost:8080)")
		token      = flag.String("token", os.Getenv("CDR_TOKEN"), "Bearer token for -post")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Str("service", "cdrgen").
		Logger()

	cfg := defaults
	cfg.Count = *count
	cfg.Days = *days
	cfg.PeakHourFactor = *peakFactor
	cfg.Seed = *seed
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Start, err = time.Parse("2006-01-02", *start); err != nil {
		logger.Fatal().Err(err).Str("start", *start).Msg("invalid start date")
	}
	if *dests != "" {
		if cfg.Destinations, err = parseWeights(*dests); err != nil {
			logger.Fatal().Err(err).Msg("invalid destinations")
		}
	}

	gen, err := cdrgen.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid generator config")
	}
	calls := gen.Calls()
	logger.Info().
		Int("calls", len(calls)).
		Int64("seed", cfg.Seed).
		Time("start", cfg.Start).
		Int("days", cfg.Days).
		Msg("calls generated")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *sqlitePath != "":
		if err := seedSQLite(ctx, *sqlitePath, *table, calls); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed sqlite")
		}
		logger.Info().Str("path", *sqlitePath).Str("table", *table).Msg("sqlite seeded")

	case *postURL != "":
		snap, err := client.NewClient(strings.TrimRight(*postURL, "/"), *token).
			UploadDataset(ctx, cdrgen.Dataset(calls))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to upload dataset")
		}
		logger.Info().
			Str("dataset_id", snap.DatasetID).
			Int("records", snap.RecordCount).
			Float64("answered_rate", snap.KPIs.AnsweredRate).
			Msg("dataset uploaded")

	default:
		if err := writeDataset(*out, cdrgen.Dataset(calls)); err != nil {
			logger.Fatal().Err(err).Msg("failed to write dataset")
		}
	}
}

// parseWeights reads "100:5,101,102:2"; a missing weight counts as 1
func parseWeights(s string) ([]cdrgen.Weight, error) {
	var out []cdrgen.Weight
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, weight, found := strings.Cut(part, ":")
		w := cdrgen.Weight{Value: value, Weight: 1}
		if found {
			f, err := strconv.ParseFloat(weight, 64)
			if err != nil {
				return nil, err
			}
			w.Weight = f
		}
		out = append(out, w)
	}
	return out, nil
}

func seedSQLite(ctx context.Context, path, table string, calls []cdrgen.Call) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()
	return cdrgen.SeedSQLite(ctx, db, table, calls)
}

func writeDataset(path string, ds any) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}
