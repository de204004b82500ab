package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const maxToolLimit = 20

func retrieveFundFactsTool() mcp.Tool {
	return mcp.NewTool("retrieve_fund_facts",
		mcp.WithDescription("Retrieve factual records about mutual fund schemes for a free-text question. Returns records with their source links and the retrieval method used."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question or keywords, e.g. 'expense ratio of the mid cap fund'"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records to return (0-20)"),
			mcp.Min(0),
			mcp.Max(maxToolLimit),
		),
	)
}

func listSchemesTool() mcp.Tool {
	return mcp.NewTool("list_schemes",
		mcp.WithDescription("List every fund scheme known to the corpus"),
	)
}

func getFundRecordTool() mcp.Tool {
	return mcp.NewTool("get_fund_record",
		mcp.WithDescription("Fetch one record by id, e.g. 'fund-a-mid-cap__fees'"),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("Record id in the form <entity_id>__<category_tag>[__<sub_key>]"),
		),
	)
}

type toolRecord struct {
	ID          string         `json:"id"`
	Entity      string         `json:"entity"`
	Category    string         `json:"category"`
	SourceRef   string         `json:"source_ref"`
	Body        string         `json:"body"`
	Fields      map[string]any `json:"fields,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	FetchedDate string         `json:"fetched_date,omitempty"`
}

func toToolRecord(rec domain.Record) toolRecord {
	out := toolRecord{
		ID:        rec.ID,
		Entity:    rec.EntityDisplayName,
		Category:  rec.CategoryTag,
		SourceRef: rec.SourceRef,
		Body:      rec.BodyText,
		Fields:    rec.StructuredFields,
	}
	if !rec.FetchedAt.IsZero() {
		out.FetchedDate = rec.FetchedAt.Format("2006-01-02")
	}
	return out
}

func (s *Server) handleRetrieveFundFacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query parameter is required and cannot be empty"), nil
	}
	limit := request.GetInt("limit", s.defaultLimit)
	if limit < 0 || limit > maxToolLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 0 and %d", maxToolLimit)), nil
	}

	result, err := s.corpus.Retrieve(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	records := make([]toolRecord, 0, len(result.Records))
	for i, rec := range result.Records {
		tr := toToolRecord(rec)
		score := result.Scores[i]
		tr.Score = &score
		records = append(records, tr)
	}
	return jsonResult(map[string]any{
		"method":        result.Method,
		"entity_hint":   result.EntityHint,
		"category_hint": result.CategoryHint,
		"records":       records,
	})
}

func (s *Server) handleListSchemes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"snapshot_version": s.corpus.SnapshotVersion(),
		"schemes":          s.corpus.ListEntities(),
	})
}

func (s *Server) handleGetFundRecord(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("record_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("record_id parameter is required"), nil
	}
	rec, ok := s.corpus.GetRecord(strings.TrimSpace(id))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("record %q not found", id)), nil
	}
	return jsonResult(toToolRecord(rec))
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrCorpusUnavailable):
		return "corpus is not available: " + err.Error()
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid request: " + err.Error()
	default:
		return err.Error()
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
