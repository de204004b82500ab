package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

type corpusFake struct {
	result    domain.RetrievalResult
	err       error
	lastLimit int
	records   map[string]domain.Record
}

func (f *corpusFake) Retrieve(_ context.Context, _ string, limit int) (domain.RetrievalResult, error) {
	f.lastLimit = limit
	return f.result, f.err
}

func (f *corpusFake) ListEntities() []domain.Entity {
	return []domain.Entity{{ID: "fund-a-mid-cap", DisplayName: "Fund A Mid Cap"}}
}

func (f *corpusFake) GetRecord(id string) (domain.Record, bool) {
	rec, ok := f.records[id]
	return rec, ok
}

func (f *corpusFake) GetRecordsForEntity(string) []domain.Record { return []domain.Record{} }
func (f *corpusFake) VectorEnabled() bool                        { return false }
func (f *corpusFake) SnapshotVersion() string                    { return "v1" }

var feesRecord = domain.Record{
	ID:                "fund-a-mid-cap__fees",
	EntityID:          "fund-a-mid-cap",
	EntityDisplayName: "Fund A Mid Cap",
	CategoryTag:       domain.CategoryFees,
	SourceRef:         "https://example.com/fund-a-mid-cap",
	BodyText:          "Expense ratio 0.71%.",
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestRetrieveFundFactsReturnsRecordsAndMethod(t *testing.T) {
	corpus := &corpusFake{result: domain.RetrievalResult{
		Records: []domain.Record{feesRecord},
		Scores:  []float64{1},
		Method:  domain.MethodExact,
	}}
	s := NewServer(corpus, 3)

	res, err := s.handleRetrieveFundFacts(context.Background(), callTool(map[string]any{"query": "mid cap expense ratio"}))
	if err != nil {
		t.Fatalf("handleRetrieveFundFacts() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if corpus.lastLimit != 3 {
		t.Fatalf("expected default limit 3, got %d", corpus.lastLimit)
	}

	var payload struct {
		Method  string       `json:"method"`
		Records []toolRecord `json:"records"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if payload.Method != string(domain.MethodExact) || len(payload.Records) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Records[0].SourceRef != feesRecord.SourceRef || payload.Records[0].Score == nil {
		t.Fatalf("unexpected record %+v", payload.Records[0])
	}
}

func TestRetrieveFundFactsValidatesArguments(t *testing.T) {
	s := NewServer(&corpusFake{}, 3)

	cases := []map[string]any{
		{},
		{"query": "   "},
		{"query": "fees", "limit": float64(50)},
		{"query": "fees", "limit": float64(-1)},
	}
	for _, args := range cases {
		res, err := s.handleRetrieveFundFacts(context.Background(), callTool(args))
		if err != nil {
			t.Fatalf("expected tool error result, got protocol error %v", err)
		}
		if !res.IsError {
			t.Fatalf("expected tool error for %v", args)
		}
	}
}

func TestRetrieveFundFactsReportsCorpusUnavailable(t *testing.T) {
	s := NewServer(&corpusFake{err: domain.WrapError(domain.ErrCorpusUnavailable, "retrieve", errors.New("not initialized"))}, 3)

	res, err := s.handleRetrieveFundFacts(context.Background(), callTool(map[string]any{"query": "fees"}))
	if err != nil {
		t.Fatalf("unexpected protocol error %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "corpus is not available") {
		t.Fatalf("expected corpus unavailable tool error")
	}
}

func TestGetFundRecord(t *testing.T) {
	s := NewServer(&corpusFake{records: map[string]domain.Record{feesRecord.ID: feesRecord}}, 3)

	res, err := s.handleGetFundRecord(context.Background(), callTool(map[string]any{"record_id": feesRecord.ID}))
	if err != nil || res.IsError {
		t.Fatalf("expected record, err=%v", err)
	}
	if !strings.Contains(resultText(t, res), "0.71%") {
		t.Fatalf("expected record body in result")
	}

	res, err = s.handleGetFundRecord(context.Background(), callTool(map[string]any{"record_id": "missing__fees"}))
	if err != nil || !res.IsError {
		t.Fatalf("expected not found tool error, err=%v", err)
	}
}

func TestListSchemes(t *testing.T) {
	s := NewServer(&corpusFake{}, 3)

	res, err := s.handleListSchemes(context.Background(), callTool(nil))
	if err != nil || res.IsError {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(resultText(t, res), "fund-a-mid-cap") {
		t.Fatalf("expected scheme in result: %s", resultText(t, res))
	}
}
