package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// IDSeparator joins entity id, category tag and the optional sub key of a record id.
const IDSeparator = "__"

// Category tags of the closed content vocabulary.
const (
	CategoryOverview    = "overview"
	CategoryPerformance = "performance"
	CategoryNAV         = "nav"
	CategoryHoldings    = "holdings"
	CategoryFees        = "fees"
	CategoryExitLoad    = "exit_load"
	CategoryRisk        = "risk"
	CategoryTax         = "tax"
	CategoryFundManager = "fund_manager"
	CategoryFAQ         = "faq"
	CategoryContact     = "contact"
	CategoryRegulatory  = "regulatory"
	CategoryDownloads   = "downloads"
)

var knownCategories = map[string]struct{}{
	CategoryOverview:    {},
	CategoryPerformance: {},
	CategoryNAV:         {},
	CategoryHoldings:    {},
	CategoryFees:        {},
	CategoryExitLoad:    {},
	CategoryRisk:        {},
	CategoryTax:         {},
	CategoryFundManager: {},
	CategoryFAQ:         {},
	CategoryContact:     {},
	CategoryRegulatory:  {},
	CategoryDownloads:   {},
}

func IsKnownCategory(tag string) bool {
	_, ok := knownCategories[tag]
	return ok
}

// Categories returns the closed category vocabulary in sorted order.
func Categories() []string {
	out := make([]string, 0, len(knownCategories))
	for tag := range knownCategories {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Record is the atomic retrievable unit: facts about one entity/category pair.
type Record struct {
	ID                string         `json:"id" yaml:"id"`
	EntityID          string         `json:"entity_id" yaml:"entity_id"`
	EntityDisplayName string         `json:"entity_display_name" yaml:"entity_display_name"`
	CategoryTag       string         `json:"category_tag" yaml:"category_tag"`
	SourceRef         string         `json:"source_ref" yaml:"source_ref"`
	FetchedAt         time.Time      `json:"fetched_at" yaml:"fetched_at"`
	BodyText          string         `json:"body_text" yaml:"body_text"`
	StructuredFields  map[string]any `json:"structured_fields,omitempty" yaml:"structured_fields,omitempty"`
	ContentHash       string         `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
}

// Entity is a scheme known to the corpus.
type Entity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Embedding is the vector of one record plus a denormalized copy of its filter keys.
type Embedding struct {
	RecordID    string    `json:"record_id" yaml:"record_id"`
	EntityID    string    `json:"entity_id" yaml:"entity_id"`
	CategoryTag string    `json:"category_tag" yaml:"category_tag"`
	Vector      []float32 `json:"vector" yaml:"vector"`
}

// Snapshot is one wholesale build of the corpus. Record order is the corpus insertion order.
type Snapshot struct {
	Version    string      `json:"version" yaml:"version"`
	BuiltAt    time.Time   `json:"built_at" yaml:"built_at"`
	Records    []Record    `json:"records" yaml:"records"`
	Embeddings []Embedding `json:"embeddings,omitempty" yaml:"embeddings,omitempty"`
}

func CanonicalID(entityID, categoryTag string) string {
	return entityID + IDSeparator + categoryTag
}

func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Validate checks the record shape. The returned error is not kinded; callers decide.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("record id is empty")
	case strings.TrimSpace(r.EntityID) == "":
		return fmt.Errorf("record %s: entity_id is empty", r.ID)
	case strings.TrimSpace(r.EntityDisplayName) == "":
		return fmt.Errorf("record %s: entity_display_name is empty", r.ID)
	case !IsKnownCategory(r.CategoryTag):
		return fmt.Errorf("record %s: unknown category_tag %q", r.ID, r.CategoryTag)
	case strings.TrimSpace(r.SourceRef) == "":
		return fmt.Errorf("record %s: source_ref is empty", r.ID)
	}

	prefix := CanonicalID(r.EntityID, r.CategoryTag)
	if r.ID != prefix && !strings.HasPrefix(r.ID, prefix+IDSeparator) {
		return fmt.Errorf("record %s: id does not match %s[%s<sub_key>]", r.ID, prefix, IDSeparator)
	}
	return nil
}

// EmbeddingText is the text embedded for a record at build time.
func EmbeddingText(r Record) string {
	var b strings.Builder
	b.WriteString(r.EntityDisplayName)
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(r.CategoryTag, "_", " "))
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(r.BodyText))

	if len(r.StructuredFields) > 0 {
		keys := make([]string, 0, len(r.StructuredFields))
		for k := range r.StructuredFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, r.StructuredFields[k])
		}
	}
	return b.String()
}
