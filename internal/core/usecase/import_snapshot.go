package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/core/recordstore"
)

// SnapshotImportUseCase copies a validated snapshot from one source into a writable store.
type SnapshotImportUseCase struct {
	source ports.SnapshotSource
	target ports.SnapshotWriter
}

func NewSnapshotImportUseCase(source ports.SnapshotSource, target ports.SnapshotWriter) *SnapshotImportUseCase {
	return &SnapshotImportUseCase{source: source, target: target}
}

// Import validates the whole snapshot before writing anything.
func (uc *SnapshotImportUseCase) Import(ctx context.Context) (*domain.Snapshot, error) {
	snapshot, err := uc.source.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := recordstore.Load(snapshot); err != nil {
		return nil, fmt.Errorf("validate snapshot: %w", err)
	}
	if err := uc.target.ReplaceSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("replace snapshot: %w", err)
	}
	slog.Info("snapshot_imported", "version", snapshot.Version, "records", len(snapshot.Records))
	return snapshot, nil
}
