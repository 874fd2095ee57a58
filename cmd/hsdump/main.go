package main

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ssargent/hstabledb/cmd/hsdump/cmd"
)

func main() {
	if dsn := os.Getenv("HSTABLEDB_SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err == nil {
			defer sentry.Flush(2 * time.Second)
			defer sentry.Recover()
		}
	}

	cmd.Execute()
}
