// Command rdap-load bulk-loads RDAP objects from a directory of JSON files
// into the configured backend. Writes go through the same transaction
// contract the server uses, batched so large imports do not hold one
// transaction open for the whole run. Files that fail to parse are reported
// and skipped; write failures abort the run with committed batches intact.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"rdapd/internal/platform/config"
	"rdapd/internal/platform/logger"
	"rdapd/internal/rdap"
	"rdapd/internal/storage"
	"rdapd/internal/storage/memory"
	"rdapd/internal/storage/postgres"
)

func main() {
	// .env is optional; absent files fall back to process env.
	_ = godotenv.Load()

	dir := flag.String("dir", "", "directory of RDAP JSON files to load")
	batch := flag.Int("batch", 100, "objects staged per transaction")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "rdap-load: -dir is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, log, *dir, *batch); err != nil {
		log.Error("rdap-load failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, dir string, batchSize int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if batchSize < 1 {
		batchSize = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	tx, err := backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// tx is reassigned per batch; roll back whichever is open on exit.
	defer func() { _ = tx.Rollback() }()

	var loaded, skipped, commits, staged int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		obj, err := decodeFile(data)
		if err != nil {
			log.Warn("skipping file", "file", entry.Name(), "error", err)
			skipped++
			continue
		}

		if err := stage(ctx, tx, obj); err != nil {
			return fmt.Errorf("stage %s: %w", entry.Name(), err)
		}
		loaded++
		staged++

		if staged >= batchSize {
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			commits++
			staged = 0
			tx, err = backend.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin transaction: %w", err)
			}
		}
	}

	if staged > 0 {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		commits++
	}

	log.Info("load complete", "loaded", loaded, "skipped", skipped, "batches", commits)
	return nil
}

// decodeFile parses one file as a single RDAP object. Bodies without an
// objectClassName load as help responses for the default host when they
// carry notices.
func decodeFile(data []byte) (rdap.Object, error) {
	obj, err := rdap.DecodeObject(data)
	if err == nil {
		return obj, nil
	}
	if !errors.Is(err, rdap.ErrUnknownClass) {
		return nil, err
	}
	help, helpErr := rdap.DecodeHelp(data)
	if helpErr != nil || len(help.Notices) == 0 {
		return nil, err
	}
	return help, nil
}

func stage(ctx context.Context, tx storage.Tx, obj rdap.Object) error {
	switch o := obj.(type) {
	case *rdap.Domain:
		return tx.AddDomain(ctx, o)
	case *rdap.Entity:
		return tx.AddEntity(ctx, o)
	case *rdap.Nameserver:
		return tx.AddNameserver(ctx, o)
	case *rdap.Autnum:
		return tx.AddAutnum(ctx, o)
	case *rdap.Network:
		return tx.AddNetwork(ctx, o)
	case *rdap.Help:
		return tx.AddHelp(ctx, o)
	default:
		return fmt.Errorf("unsupported object class %q", obj.Kind())
	}
}

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case "memory":
		backend := memory.New(memory.WithMaxSearch(cfg.MaxSearch))
		if err := backend.Init(ctx); err != nil {
			return nil, fmt.Errorf("init memory backend: %w", err)
		}
		return backend, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("RDAP_POSTGRES_DSN is required for the postgres backend")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		backend := postgres.New(db, postgres.WithMaxSearch(cfg.MaxSearch))
		if err := backend.Init(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("init postgres backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
