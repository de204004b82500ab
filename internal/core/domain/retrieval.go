package domain

import "time"

// Method names the cascade strategy that produced a retrieval result.
type Method string

const (
	MethodExact             Method = "exact"
	MethodVectorFiltered    Method = "vector_filtered"
	MethodCategoryFiltered  Method = "category_filtered"
	MethodEntityFiltered    Method = "entity_filtered"
	MethodVector            Method = "vector"
	MethodSubstringExact    Method = "substring_exact"
	MethodSubstringEntity   Method = "substring_entity"
	MethodSubstringCategory Method = "substring_category"
	MethodSubstringScan     Method = "substring_scan"
	MethodNone              Method = "none"
)

// IsVector reports whether the method ranks by embedding similarity.
func (m Method) IsVector() bool {
	switch m {
	case MethodVectorFiltered, MethodCategoryFiltered, MethodEntityFiltered, MethodVector:
		return true
	default:
		return false
	}
}

const (
	// ExactMatchScore is attached to exact key lookups.
	ExactMatchScore = 1.0
	// SubstringPlaceholderScore is a constant attached to substring fallback results.
	// It is not a similarity measure and must not be compared with vector scores.
	SubstringPlaceholderScore = 0.5
)

// Hints are the advisory entity/category guesses extracted from a query. Empty means absent.
type Hints struct {
	EntityID    string `json:"entity_id,omitempty"`
	CategoryTag string `json:"category_tag,omitempty"`
}

func (h Hints) HasEntity() bool   { return h.EntityID != "" }
func (h Hints) HasCategory() bool { return h.CategoryTag != "" }
func (h Hints) Complete() bool    { return h.HasEntity() && h.HasCategory() }

// VectorHit is one nearest-neighbour candidate; Score is in [0,1], 1 being closest.
type VectorHit struct {
	RecordID    string  `json:"record_id"`
	EntityID    string  `json:"entity_id"`
	CategoryTag string  `json:"category_tag"`
	Score       float64 `json:"score"`
}

type RetrievalResult struct {
	Records      []Record  `json:"records"`
	Scores       []float64 `json:"scores"`
	Method       Method    `json:"method"`
	EntityHint   string    `json:"entity_hint,omitempty"`
	CategoryHint string    `json:"category_hint,omitempty"`
}

// NoContextAnswer is returned by the answer layer when retrieval finds nothing.
const NoContextAnswer = "I could not find this information in the scheme documents."

type Answer struct {
	Text      string   `json:"text"`
	SourceRef string   `json:"source_ref,omitempty"`
	Method    Method   `json:"method"`
	NoContext bool     `json:"no_context"`
	Sources   []Record `json:"sources"`
}

// CorpusRebuilt is published after an index build completes.
type CorpusRebuilt struct {
	Version    string    `json:"version"`
	Records    int       `json:"records"`
	Embeddings int       `json:"embeddings"`
	Dimensions int       `json:"dimensions"`
	Sinks      []string  `json:"sinks"`
	BuiltAt    time.Time `json:"built_at"`
}

type BuildReport struct {
	Version    string        `json:"version"`
	Records    int           `json:"records"`
	Embeddings int           `json:"embeddings"`
	Dimensions int           `json:"dimensions"`
	Sinks      []string      `json:"sinks"`
	Duration   time.Duration `json:"duration"`
}
