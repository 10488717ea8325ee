package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/storage"
	"github.com/atinyakov/GophFood/internal/config"
	"github.com/atinyakov/GophFood/internal/db"
	"github.com/atinyakov/GophFood/internal/repository"
)

const cleanerInterval = time.Hour

// OpenStore builds the persisted local store selected by opts. The returned
// close func releases what the store holds; it is never nil.
func OpenStore(ctx context.Context, opts *config.Options, log *zap.Logger) (storage.Store, func() error, error) {
	var (
		store   storage.Store
		closeFn = func() error { return nil }
	)

	switch opts.StoreKind {
	case config.StoreMemory:
		store = storage.NewMemoryStore()
	case config.StoreFile:
		fs, err := storage.NewFileStore(opts.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	case config.StorePostgres:
		conn, err := db.InitPostgres(ctx, opts.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		cleanerCtx, cancel := context.WithCancel(context.Background())
		if opts.SnapshotRetention > 0 {
			db.StartStaleSnapshotCleaner(cleanerCtx, conn, cleanerInterval, opts.SnapshotRetention, log)
		}
		store = repository.NewPostgresKVRepository(conn)
		closeFn = func() error {
			cancel()
			return conn.Close()
		}
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", opts.StoreKind)
	}

	if opts.Passphrase != "" {
		sealed, err := storage.NewSealedStore(ctx, store, opts.Passphrase)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		store = sealed
	}
	log.Info("local store ready",
		zap.String("kind", opts.StoreKind),
		zap.Bool("sealed", opts.Passphrase != ""))
	return store, closeFn, nil
}
