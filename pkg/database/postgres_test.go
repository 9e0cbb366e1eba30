package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/training-admin-api/pkg/config"
)

func TestConnectionStrings(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "db",
		Port:            5432,
		User:            "admin",
		Password:        "p@ss",
		Name:            "training",
		SSLMode:         "disable",
		MigrationsTable: "schema_migrations",
	}

	assert.Equal(t, "host=db port=5432 user=admin password=p@ss dbname=training sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://admin:p%40ss@db:5432/training?sslmode=disable&x-migrations-table=schema_migrations", URL(cfg))
}
