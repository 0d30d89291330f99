package store

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// migrateWorkers bounds concurrent record copies.
const migrateWorkers = 4

// migrate copies every record of src into dst. Records already present in dst
// with the same id are skipped, so an interrupted migration can be rerun.
func migrate(ctx context.Context, src, dst Store, logger *events.Logger) error {
	list, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}

	logger.WithField("count", len(list)).Info("Migrating vaults")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(migrateWorkers)

	for _, meta := range list {
		id := meta.ID
		g.Go(func() error {
			v, err := src.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("load vault %s: %w", id, err)
			}

			err = dst.Create(ctx, v)
			switch {
			case errors.Is(err, models.ErrDuplicate):
				logger.WithField("vault_id", id).Warn("Vault already in target, skipped")
				return nil
			case err != nil:
				return fmt.Errorf("save vault %s: %w", id, err)
			}

			logger.WithField("vault_id", id).Debug("Migrated vault")
			return nil
		})
	}

	return g.Wait()
}
