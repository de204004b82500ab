package recordstore

import (
	"testing"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

func rec(entity, category, sub string) domain.Record {
	id := domain.CanonicalID(entity, category)
	if sub != "" {
		id += domain.IDSeparator + sub
	}
	return domain.Record{
		ID:                id,
		EntityID:          entity,
		EntityDisplayName: entity + " display",
		CategoryTag:       category,
		SourceRef:         "https://example.com/" + entity,
		BodyText:          "body of " + id,
	}
}

func TestLoadRoundTripsEveryRecord(t *testing.T) {
	snapshot := &domain.Snapshot{Version: "v1", Records: []domain.Record{
		rec("fund-a-mid-cap", domain.CategoryFees, ""),
		rec("fund-a-mid-cap", domain.CategoryRisk, ""),
		rec("fund-a-large-cap", domain.CategoryFees, ""),
		rec("fund-a-large-cap", domain.CategoryHoldings, "top10"),
	}}
	store, err := Load(snapshot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, want := range snapshot.Records {
		got, ok := store.GetByID(want.ID)
		if !ok {
			t.Fatalf("GetByID(%s) not found", want.ID)
		}
		if got.ID != want.ID || got.BodyText != want.BodyText || got.SourceRef != want.SourceRef {
			t.Fatalf("GetByID(%s) = %+v", want.ID, got)
		}
		if got.ContentHash != domain.ContentHash(want.BodyText) {
			t.Fatalf("expected computed content hash for %s", want.ID)
		}
	}
	if store.Len() != 4 || store.Version() != "v1" {
		t.Fatalf("unexpected len/version %d/%s", store.Len(), store.Version())
	}
}

func TestLoadBuildsOrderedSecondaryIndexes(t *testing.T) {
	store, err := Load(&domain.Snapshot{Records: []domain.Record{
		rec("fund-b", domain.CategoryFees, ""),
		rec("fund-a", domain.CategoryFees, ""),
		rec("fund-a", domain.CategoryRisk, ""),
	}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fees := store.GetByCategory(domain.CategoryFees)
	if len(fees) != 2 || fees[0].EntityID != "fund-b" || fees[1].EntityID != "fund-a" {
		t.Fatalf("expected fees in corpus order, got %+v", fees)
	}
	fundA := store.GetByEntity("fund-a")
	if len(fundA) != 2 || fundA[0].CategoryTag != domain.CategoryFees {
		t.Fatalf("unexpected entity index %+v", fundA)
	}
	if got := store.GetByEntity("missing"); len(got) != 0 {
		t.Fatalf("expected empty slice for unknown entity, got %d", len(got))
	}

	entities := store.ListEntities()
	if len(entities) != 2 || entities[0].ID != "fund-a" || entities[0].DisplayName != "fund-a display" {
		t.Fatalf("unexpected entities %+v", entities)
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	_, err := Load(&domain.Snapshot{Records: []domain.Record{
		rec("fund-a", domain.CategoryFees, ""),
		rec("fund-a", domain.CategoryFees, ""),
	}})
	if !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestLoadRejectsMalformedRecord(t *testing.T) {
	bad := rec("fund-a", domain.CategoryFees, "")
	bad.SourceRef = ""
	_, err := Load(&domain.Snapshot{Records: []domain.Record{bad}})
	if !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestLoadRejectsEmptyOrNilSnapshot(t *testing.T) {
	if _, err := Load(nil); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable for nil, got %v", err)
	}
	if _, err := Load(&domain.Snapshot{}); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable for empty, got %v", err)
	}
}

func TestGetByIDMissingIsNotFound(t *testing.T) {
	store, err := Load(&domain.Snapshot{Records: []domain.Record{rec("fund-a", domain.CategoryFees, "")}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := store.GetByID("fund-a__tax"); ok {
		t.Fatalf("expected not found")
	}
}

func TestReturnedRecordsDoNotAliasStore(t *testing.T) {
	fees := rec("fund-a", domain.CategoryFees, "")
	fees.StructuredFields = map[string]any{
		"expenseRatioPercent": 0.71,
		"plans":               []any{"direct", "regular"},
		"load":                map[string]any{"exit": "1%"},
	}
	store, err := Load(&domain.Snapshot{Records: []domain.Record{fees}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got, _ := store.GetByID(fees.ID)
	got.StructuredFields["expenseRatioPercent"] = 9.99
	got.StructuredFields["plans"].([]any)[0] = "tampered"
	got.StructuredFields["load"].(map[string]any)["exit"] = "tampered"
	store.GetByEntity("fund-a")[0].StructuredFields["added"] = true
	store.GetByCategory(domain.CategoryFees)[0].StructuredFields["added"] = true
	store.All()[0].StructuredFields["added"] = true

	again, _ := store.GetByID(fees.ID)
	fields := again.StructuredFields
	if fields["expenseRatioPercent"] != 0.71 || fields["plans"].([]any)[0] != "direct" || fields["load"].(map[string]any)["exit"] != "1%" {
		t.Fatalf("store record was mutated through a returned copy: %v", fields)
	}
	if _, ok := fields["added"]; ok {
		t.Fatalf("store record gained a key through a returned copy: %v", fields)
	}
}
