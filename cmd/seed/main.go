package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
	"github.com/hackgods/clinic-request-desk/internal/config"
	"github.com/hackgods/clinic-request-desk/internal/db"
	"github.com/hackgods/clinic-request-desk/internal/logging"
)

type seedConfig struct {
	Patients      int
	Requests      int
	ConflictPairs int
	StaffUser     string
	StaffPassword string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, "seed")

	sc := seedConfig{
		Patients:      getInt("SEED_PATIENTS", 200),
		Requests:      getInt("SEED_REQUESTS", 60),
		ConflictPairs: getInt("SEED_CONFLICT_PAIRS", 5),
		StaffUser:     getEnv("SEED_STAFF_USER", "recepcion"),
		StaffPassword: getEnv("SEED_STAFF_PASSWORD", "recepcion123"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	patients, err := seedPatients(ctx, pool, sc.Patients, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedRequests(ctx, appointment.NewPgRepository(pool), patients, sc, cfg.Location, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed requests")
	}
	if err := seedStaff(ctx, pool, cfg, sc, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed staff account")
	}

	logger.Info().Msg("seed complete")
}

// contact is what a returning patient repeats on a new request.
type contact struct {
	Name  string
	Email string
	Phone string
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) ([]contact, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	out := make([]contact, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			c := contact{
				Name:  gofakeit.Name(),
				Email: gofakeit.Email(),
				Phone: gofakeit.Phone(),
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, surname, age, gender, phone, email, address, created_at)
				VALUES ($1, '', $2, $3, $4, lower($5), $6, now())
			`, c.Name, gofakeit.Number(1, 95), gofakeit.Gender(), c.Phone, c.Email, gofakeit.Street())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			out = append(out, c)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return out, nil
}

// seedRequests spreads requests over the next two weeks of clinic hours.
// Some come from known patients, and a few days get a forced second request
// so the desk has conflicts to show.
func seedRequests(ctx context.Context, repo *appointment.PgRepository, known []contact, sc seedConfig, loc *time.Location, logger zerolog.Logger) error {
	logger.Info().Int("count", sc.Requests).Int("conflict_pairs", sc.ConflictPairs).Msg("seeding requests")

	today := time.Now().In(loc)
	slot := func() time.Time {
		day := today.AddDate(0, 0, gofakeit.Number(1, 14))
		return time.Date(day.Year(), day.Month(), day.Day(), gofakeit.Number(8, 17), 30*gofakeit.Number(0, 1), 0, 0, loc)
	}

	create := func(at time.Time) error {
		c := contact{Name: gofakeit.Name(), Email: gofakeit.Email(), Phone: gofakeit.Phone()}
		if len(known) > 0 && gofakeit.Number(1, 100) <= 40 {
			c = known[gofakeit.Number(0, len(known)-1)]
		}
		age := gofakeit.Number(1, 95)

		_, err := repo.CreateRequest(ctx, appointment.Request{
			PatientName: c.Name,
			Phone:       c.Phone,
			Age:         &age,
			Email:       c.Email,
			RequestedAt: at,
		})
		return err
	}

	for i := 0; i < sc.Requests; i++ {
		if err := create(slot()); err != nil {
			return err
		}
	}

	for i := 0; i < sc.ConflictPairs; i++ {
		first := slot()
		if err := create(first); err != nil {
			return err
		}
		second := time.Date(first.Year(), first.Month(), first.Day(), gofakeit.Number(8, 17), 0, 0, 0, loc)
		if err := create(second); err != nil {
			return err
		}
	}

	logger.Info().Msg("requests seeded")
	return nil
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, sc seedConfig, logger zerolog.Logger) error {
	svc, err := account.NewService(
		account.NewPgRepository(pool),
		account.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		logger,
	)
	if err != nil {
		return err
	}

	_, err = svc.Register(ctx, account.Registration{
		Username: sc.StaffUser,
		Email:    sc.StaffUser + "@clinic.example",
		Password: sc.StaffPassword,
	})
	if errors.Is(err, account.ErrAccountExists) {
		logger.Info().Str("username", sc.StaffUser).Msg("staff account already exists")
		return nil
	}
	return err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
