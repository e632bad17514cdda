// token-expiry-sweep runs one pass of the token expiry sweep and exits.
// Intended for Cloud Scheduler / cron when the in-process sweep is disabled.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/token-expiry-sweep
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/models"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	count, err := models.MarkExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expired %d tokens\n", count)
}
