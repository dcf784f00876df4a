package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"schooladmin.org/internal/migrate"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations (defaults to the embedded set)")
		seedsPath      = flag.String("seeds", "", "Directory with SQL seeds (defaults to the embedded set)")
	)
	flag.Parse()

	if *dsn == "" {
		_ = godotenv.Load()
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}
	logger, err := obs.InitLogger(false, "info")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, pg.Pool{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), source(*migrationsPath, migrate.Migrations()), source(*seedsPath, migrate.Seeds()))

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []migrate.Record
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, rec := range history {
				fmt.Printf("%s\t%s\n", rec.AppliedAt.UTC().Format(time.RFC3339), rec.Name)
			}
		}
	default:
		logger.Fatal("unknown command", zap.String("command", flag.Arg(0)))
	}
	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

func source(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}
