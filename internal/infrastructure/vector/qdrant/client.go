package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

const defaultUpsertBatch = 64

// pointNamespace derives stable point ids from record ids, so a rebuild overwrites
// rather than duplicates.
var pointNamespace = uuid.MustParse("6f1c1c8e-1c53-4a8e-9c1a-5f0d2b7a9e41")

type Client struct {
	baseURL     string
	collection  string
	httpClient  *http.Client
	upsertBatch int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collection:  collection,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		upsertBatch: defaultUpsertBatch,
	}
}

func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (c *Client) Name() string { return "qdrant" }

// ReplaceEmbeddings drops the collection and uploads the full embedding set.
func (c *Client) ReplaceEmbeddings(ctx context.Context, version string, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return errors.New("qdrant replace: no embeddings")
	}
	if err := c.dropCollection(ctx); err != nil {
		return err
	}
	if err := c.createCollection(ctx, len(embeddings[0].Vector)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	for lo := 0; lo < len(embeddings); lo += c.upsertBatch {
		hi := min(lo+c.upsertBatch, len(embeddings))
		points := make([]point, 0, hi-lo)
		for _, emb := range embeddings[lo:hi] {
			points = append(points, point{
				ID:     PointID(emb.RecordID),
				Vector: emb.Vector,
				Payload: map[string]any{
					"record_id":        emb.RecordID,
					"entity_id":        emb.EntityID,
					"category_tag":     emb.CategoryTag,
					"snapshot_version": version,
				},
			})
		}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
		if err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return err
		}
	}
	return nil
}

// OpenVectorIndex checks that the collection exists and holds a point for every record of
// the snapshot's version. Points left over from another build make the index unusable.
func (c *Client) OpenVectorIndex(ctx context.Context, snapshot *domain.Snapshot) (ports.VectorIndex, error) {
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodGet, url, nil, &info, "collection info"); err != nil {
		return nil, err
	}
	if info.Result.PointsCount == 0 {
		return nil, fmt.Errorf("qdrant collection %s is empty", c.collection)
	}
	if snapshot == nil {
		return c, nil
	}

	current, err := c.countVersion(ctx, snapshot.Version)
	if err != nil {
		return nil, err
	}
	if current < len(snapshot.Records) {
		return nil, fmt.Errorf("qdrant collection %s has %d points for version %q and %d records, rebuild the index",
			c.collection, current, snapshot.Version, len(snapshot.Records))
	}
	return c, nil
}

func (c *Client) countVersion(ctx context.Context, version string) (int, error) {
	reqBody := map[string]any{
		"exact": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "snapshot_version", "match": map[string]any{"value": version}},
			},
		},
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &countResp, "count"); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

// Query runs an unfiltered similarity search. Qdrant reports raw cosine, which is
// mapped to [0,1] to match the in-process index.
func (c *Client) Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error) {
	if k <= 0 {
		return []domain.VectorHit{}, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "record_id")
		if id == "" {
			continue
		}
		out = append(out, domain.VectorHit{
			RecordID:    id,
			EntityID:    getStringPayload(r.Payload, "entity_id"),
			CategoryTag: getStringPayload(r.Payload, "category_tag"),
			Score:       max(0, min(1, (r.Score+1)/2)),
		})
	}
	return out, nil
}

func (c *Client) dropCollection(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodDelete, url, nil, nil, "drop collection")
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) createCollection(ctx context.Context, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, reqBody, nil, "create collection")
	var statusErr *StatusError
	// 409 if a concurrent build created it first.
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
		return nil
	}
	return err
}

type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("qdrant %s status: %s: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("qdrant %s status: %s", e.Op, e.Status)
}

func (c *Client) do(ctx context.Context, method, url string, in, out any, op string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
