package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/database"
	"github.com/Gresham24/invite-ai/internal/eventbus"
)

// testconn checks that the configured backing services are reachable.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DatabaseDriver == "postgres" {
		checkPostgres(ctx, cfg.DatabaseURL)
	} else {
		fmt.Println("Database driver is", cfg.DatabaseDriver, "- skipping Postgres")
	}

	fmt.Println("Connecting to Redis:", cfg.RedisURL)
	if rdb, err := database.NewRedis(ctx, cfg.RedisURL); err != nil {
		fmt.Printf("Error connecting to Redis: %v\n", err)
	} else {
		fmt.Println("Redis connection successful!")
		rdb.Close()
	}

	fmt.Println("Connecting to NATS:", cfg.NATSURL)
	if nc, err := eventbus.Connect(cfg.NATSURL, "invite-ai-testconn", zap.NewNop()); err != nil {
		fmt.Printf("Error connecting to NATS: %v\n", err)
	} else {
		fmt.Println("NATS connection successful!")
		nc.Close()
	}
}

func checkPostgres(ctx context.Context, url string) {
	fmt.Println("Connecting to Postgres")

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fmt.Printf("Error creating pool: %v\n", err)
		return
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Printf("Error pinging: %v\n", err)
		return
	}
	fmt.Println("Connection successful!")

	var invites int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM invites").Scan(&invites); err != nil {
		fmt.Printf("Error querying: %v\n", err)
		return
	}
	fmt.Printf("Invites stored: %d\n", invites)
}
