package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coffeechat/scheduler/internal/db"
)

var timezones = []string{
	"UTC",
	"America/New_York",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Berlin",
	"Asia/Taipei",
	"Asia/Tokyo",
	"Australia/Sydney",
}

var durations = []int{15, 30, 60}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	userIDs, err := seedUsers(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedBusyIntervals(context.Background(), pool, userIDs); err != nil {
		log.Fatalf("seed busy intervals: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d users with profiles", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, err
		}

		tz := timezones[gofakeit.Number(0, len(timezones)-1)]
		duration := durations[gofakeit.Number(0, len(durations)-1)]
		blockEarly := gofakeit.Bool()

		_, err = tx.Exec(ctx, `
			INSERT INTO user_profiles (user_id, timezone, slot_duration_minutes, block_early_hours, calendar_connected, updated_at)
			VALUES ($1, $2, $3, $4, false, now())
		`, id, tz, duration, blockEarly)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("users seeded")
	return ids, nil
}

func seedBusyIntervals(ctx context.Context, pool *pgxpool.Pool, userIDs []uuid.UUID) error {
	log.Printf("seeding busy intervals for %d users", len(userIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, userID := range userIDs {
		// A handful of meetings over the coming week, aligned to the half hour.
		for i := 0; i < gofakeit.Number(2, 8); i++ {
			dayOffset := gofakeit.Number(0, 6)
			halfHour := gofakeit.Number(16, 38) // 08:00 to 19:00

			start := time.Now().UTC().Truncate(24 * time.Hour).
				Add(time.Duration(dayOffset) * 24 * time.Hour).
				Add(time.Duration(halfHour) * 30 * time.Minute)
			end := start.Add(time.Duration(gofakeit.Number(1, 4)) * 30 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO busy_intervals (user_id, start_time, end_time, imported_at)
				VALUES ($1, $2, $3, now())
			`, userID, start, end)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("busy intervals seeded")
	return nil
}
