// Package recordstore holds the immutable in-memory corpus and its secondary indexes.
package recordstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

// Store is read-only after Load and safe for concurrent use without locking.
type Store struct {
	version    string
	records    []domain.Record
	byID       map[string]int
	byEntity   map[string][]string
	byCategory map[string][]string
	entities   []domain.Entity
}

// Load validates the snapshot and builds the id map and the entity/category indexes.
// Any shape problem fails the whole load with domain.ErrCorpusUnavailable.
func Load(snapshot *domain.Snapshot) (*Store, error) {
	if snapshot == nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load record store", errors.New("snapshot is nil"))
	}
	if len(snapshot.Records) == 0 {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load record store", errors.New("snapshot has no records"))
	}

	s := &Store{
		version:    snapshot.Version,
		records:    make([]domain.Record, 0, len(snapshot.Records)),
		byID:       make(map[string]int, len(snapshot.Records)),
		byEntity:   make(map[string][]string),
		byCategory: make(map[string][]string),
	}

	displayNames := make(map[string]string)
	for _, rec := range snapshot.Records {
		if err := rec.Validate(); err != nil {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load record store", err)
		}
		if _, dup := s.byID[rec.ID]; dup {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load record store", fmt.Errorf("duplicate record id %s", rec.ID))
		}
		if rec.ContentHash == "" {
			rec.ContentHash = domain.ContentHash(rec.BodyText)
		}
		rec.StructuredFields = cloneFields(rec.StructuredFields)

		s.byID[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
		s.byEntity[rec.EntityID] = append(s.byEntity[rec.EntityID], rec.ID)
		s.byCategory[rec.CategoryTag] = append(s.byCategory[rec.CategoryTag], rec.ID)
		if _, seen := displayNames[rec.EntityID]; !seen {
			displayNames[rec.EntityID] = rec.EntityDisplayName
		}
	}

	s.entities = make([]domain.Entity, 0, len(displayNames))
	for id, name := range displayNames {
		s.entities = append(s.entities, domain.Entity{ID: id, DisplayName: name})
	}
	sort.Slice(s.entities, func(i, j int) bool { return s.entities[i].ID < s.entities[j].ID })

	return s, nil
}

func (s *Store) Version() string { return s.version }

func (s *Store) Len() int { return len(s.records) }

func (s *Store) GetByID(id string) (domain.Record, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return domain.Record{}, false
	}
	return s.record(idx), true
}

// GetByEntity returns the entity's records in corpus order.
func (s *Store) GetByEntity(entityID string) []domain.Record {
	return s.resolve(s.byEntity[entityID])
}

// GetByCategory returns the category's records in corpus order.
func (s *Store) GetByCategory(categoryTag string) []domain.Record {
	return s.resolve(s.byCategory[categoryTag])
}

func (s *Store) ListEntities() []domain.Entity {
	out := make([]domain.Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

func (s *Store) HasEntity(entityID string) bool {
	_, ok := s.byEntity[entityID]
	return ok
}

// All returns every record in corpus order.
func (s *Store) All() []domain.Record {
	out := make([]domain.Record, 0, len(s.records))
	for i := range s.records {
		out = append(out, s.record(i))
	}
	return out
}

func (s *Store) resolve(ids []string) []domain.Record {
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.record(s.byID[id]))
	}
	return out
}

// record returns a copy that shares nothing mutable with the store.
func (s *Store) record(idx int) domain.Record {
	rec := s.records[idx]
	rec.StructuredFields = cloneFields(rec.StructuredFields)
	return rec
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers a decoded JSON or YAML document can hold.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
