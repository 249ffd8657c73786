package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/KasparTech1/Friday01/internal/config"
	"github.com/KasparTech1/Friday01/migrations"
	"github.com/KasparTech1/Friday01/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel, "migrate")
	if err != nil {
		log.Error("config invalid", "err", err)
		os.Exit(1)
	}
	down := flag.Bool("down", false, "roll back the latest migration")
	flag.Parse()

	db, err := sql.Open("pgx", cfg.PGURL)
	if err != nil {
		log.Error("open db failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if *down {
		if err := migrations.Down(ctx, db); err != nil {
			log.Error("migrate down failed", "err", err)
			os.Exit(1)
		}
		log.Info("migration rolled back")
		return
	}
	if err := migrations.Up(ctx, db); err != nil {
		log.Error("migrate up failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied")
}
