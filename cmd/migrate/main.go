package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/training-admin-api/pkg/config"
	"github.com/noah-isme/training-admin-api/pkg/database"
	"github.com/noah-isme/training-admin-api/pkg/logger"
	"github.com/noah-isme/training-admin-api/pkg/migrations"
)

func main() {
	action := flag.String("action", migrations.ActionUp, "migration action: up, down, step-up or drop")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if *action == migrations.ActionDrop && cfg.Env == config.EnvProduction {
		logr.Fatal("refusing to drop the schema in production")
	}

	if err := migrations.Run(database.URL(cfg.Database), *action, logr); err != nil {
		logr.Fatal("migration failed", zap.String("action", *action), zap.Error(err))
	}
}
