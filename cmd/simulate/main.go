package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/config"
	"github.com/hackgods/clinic-request-desk/internal/db"
	"github.com/hackgods/clinic-request-desk/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	AcceptRatio  float64
	RejectRatio  float64
	ResolveRatio float64
	ReadRatio    float64
	RequestLimit int
	Username     string
	Password     string
	PostgresDSN  string
}

func main() {
	base, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "simulate")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(base.Env, "simulate")

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("accept", cfg.AcceptRatio).
		Float64("reject", cfg.RejectRatio).
		Float64("resolve", cfg.ResolveRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	ids, err := loadPendingRequests(ctx, pgPool, cfg.RequestLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load pending requests")
	}
	logger.Info().Int("requests", len(ids)).Msg("loaded pending requests")

	client := &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	sim := &Simulator{config: cfg, client: client, requests: ids, logger: logger}
	sim.Run()
	sim.PrintReport(os.Stdout)

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	dups, err := auditDuplicates(auditCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("duplicate audit")
	}
	printAudit(os.Stdout, dups)
	if len(dups) > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		AcceptRatio:  getFloat("SIM_ACCEPT_RATIO", 0.4),
		RejectRatio:  getFloat("SIM_REJECT_RATIO", 0.1),
		ResolveRatio: getFloat("SIM_RESOLVE_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		RequestLimit: getInt("SIM_REQUEST_LIMIT", 200),
		Username:     getEnv("SIM_USERNAME", "recepcion"),
		Password:     getEnv("SIM_PASSWORD", "recepcion123"),
		PostgresDSN:  base.PostgresDSN,
	}
	normalizeRatios(&cfg)
	return cfg
}

func normalizeRatios(cfg *SimConfig) {
	total := cfg.AcceptRatio + cfg.RejectRatio + cfg.ResolveRatio + cfg.ReadRatio
	if total <= 0 {
		return
	}
	cfg.AcceptRatio /= total
	cfg.RejectRatio /= total
	cfg.ResolveRatio /= total
	cfg.ReadRatio /= total
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("SIM_USERNAME and SIM_PASSWORD are required")
	}
	return nil
}

// loadPendingRequests picks requests that are neither rejected nor booked.
// Workers hammer a small set on purpose so actions collide.
func loadPendingRequests(ctx context.Context, pool *pgxpool.Pool, limit int) ([]int64, error) {
	rows, err := pool.Query(ctx, `
		SELECT r.id
		FROM appointment_requests r
		WHERE r.rejected_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.request_id = r.id)
		ORDER BY r.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no pending requests, run cmd/seed first")
	}
	return ids, nil
}

type duplicate struct {
	Key   string
	Count int
}

// auditDuplicates reports requests that ended up with more than one
// appointment, by request_id and by description tag.
func auditDuplicates(ctx context.Context, pool *pgxpool.Pool) ([]duplicate, error) {
	rows, err := pool.Query(ctx, `
		SELECT 'request_id=' || request_id::text, count(*)
		FROM appointments
		WHERE request_id IS NOT NULL
		GROUP BY request_id
		HAVING count(*) > 1
		UNION ALL
		SELECT 'description=' || description, count(*)
		FROM appointments
		WHERE description LIKE '% - Solicitud %'
		GROUP BY description
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duplicate
	for rows.Next() {
		var d duplicate
		if err := rows.Scan(&d.Key, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	log := s.logger.With().Int("worker", workerID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id := s.requests[rng.Intn(len(s.requests))]
		r := rng.Float64()
		switch {
		case r < s.config.AcceptRatio:
			s.do(ctx, &s.metrics.Accept, log, func() (int, error) { return s.client.Action(ctx, id, "accept") })
		case r < s.config.AcceptRatio+s.config.RejectRatio:
			s.do(ctx, &s.metrics.Reject, log, func() (int, error) { return s.client.Action(ctx, id, "reject") })
		case r < s.config.AcceptRatio+s.config.RejectRatio+s.config.ResolveRatio:
			s.do(ctx, &s.metrics.Resolve, log, func() (int, error) { return s.client.Action(ctx, id, "resolve") })
		default:
			filter := []string{"all", "conflict", "clear"}[rng.Intn(3)]
			s.do(ctx, &s.metrics.List, log, func() (int, error) { return s.client.List(ctx, filter, rng.Intn(10) == 0) })
		}
	}
}

func (s *Simulator) do(ctx context.Context, om *OperationMetrics, log zerolog.Logger, call func() (int, error)) {
	start := time.Now()
	status, err := call()
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Msg("call failed")
	}
	om.Record(latency, status)
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
