package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"termledger/backend/libs/logging"
	"termledger/backend/services/ledger-service/internal/config"
	"termledger/backend/services/ledger-service/internal/db/migrate"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down]\n", os.Args[0])
	}
	flag.Parse()

	raw := "up"
	if flag.NArg() > 0 {
		raw = flag.Arg(0)
	}
	direction, err := migrate.ParseDirection(raw)
	if err != nil {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.NewLogger("ledger-migrate")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	dsn := os.Getenv("LEDGER_POSTGRES_DSN")
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
		dsn = cfg.Database.DSN
	}

	if err := migrate.Run(dsn, direction); err != nil {
		logger.Fatal("migration failed", zap.String("direction", string(direction)), zap.Error(err))
	}
	logger.Info("migrations complete", zap.String("direction", string(direction)))
}
