// Command issue-token prints a bearer token for an existing user.
//
// Usage:
//
//	issue-token -username alice
//	issue-token -user 3f1c... -ttl 1h
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/config"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-approval/pkg/auth"
	"github.com/garyjia/invoice-approval/pkg/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	userID := flag.String("user", "", "user id (skips the database lookup)")
	username := flag.String("username", "", "username to look up")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	if *userID == "" && *username == "" {
		fmt.Fprintln(os.Stderr, "one of -user or -username is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		fatal("load env file", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}

	logger := zap.NewNop()

	id, name := *userID, *username
	if id == "" {
		db, err := database.New(database.Config{
			Path:        cfg.Database.Path,
			BusyTimeout: cfg.Database.BusyTimeout,
		}, logger)
		if err != nil {
			fatal("open database", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user, err := repository.NewUserRepository(db.DB, logger).GetByUsername(ctx, name)
		if err != nil {
			fatal("look up user", err)
		}
		id = user.ID
	}

	tokenTTL := cfg.Auth.TokenTTL
	if *ttl > 0 {
		tokenTTL = *ttl
	}

	issuer, err := auth.NewIssuer(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    tokenTTL,
	})
	if err != nil {
		fatal("create issuer", err)
	}

	token, err := issuer.Issue(id, name)
	if err != nil {
		fatal("issue token", err)
	}
	fmt.Println(token)
}

func fatal(step string, err error) {
	fmt.Fprintf(os.Stderr, "failed to %s: %v\n", step, err)
	os.Exit(1)
}
