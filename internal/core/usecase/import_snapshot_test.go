package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

type snapshotWriterFake struct {
	written *domain.Snapshot
	err     error
}

func (f *snapshotWriterFake) ReplaceSnapshot(_ context.Context, snapshot *domain.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.written = snapshot
	return nil
}

func TestSnapshotImportWritesValidSnapshot(t *testing.T) {
	target := &snapshotWriterFake{}
	uc := NewSnapshotImportUseCase(&snapshotSourceFake{snapshot: testSnapshot()}, target)

	snapshot, err := uc.Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if target.written == nil || target.written.Version != "test-v1" || len(snapshot.Records) != 5 {
		t.Fatalf("unexpected import result %+v", target.written)
	}
}

func TestSnapshotImportRejectsInvalidSnapshot(t *testing.T) {
	bad := testSnapshot()
	bad.Records = append(bad.Records, bad.Records[0])
	target := &snapshotWriterFake{}
	uc := NewSnapshotImportUseCase(&snapshotSourceFake{snapshot: bad}, target)

	if _, err := uc.Import(context.Background()); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if target.written != nil {
		t.Fatalf("invalid snapshot must not be written")
	}
}

func TestSnapshotImportPropagatesWriteError(t *testing.T) {
	uc := NewSnapshotImportUseCase(&snapshotSourceFake{snapshot: testSnapshot()}, &snapshotWriterFake{err: errors.New("db down")})
	if _, err := uc.Import(context.Background()); err == nil {
		t.Fatalf("expected write error")
	}
}
