// Package handbook queries the clinic's handbook search service for
// reference passages to cite in triage reports.
package handbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/doula/internal/triage"
)

// minScore filters out passages too weakly related to the query to cite.
const minScore = 0.25

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResult struct {
	Page    int     `json:"page"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Client talks to the handbook search service.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a handbook client for the given search service endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Search returns up to k passages matching the query, best score first.
// Weak matches are dropped and at most one passage per page is kept.
func (c *Client) Search(ctx context.Context, query string, k int) ([]triage.Passage, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, "api/v1/search")

	payload, err := json.Marshal(searchRequest{Query: normalizeQuery(query), K: k})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("handbook search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("handbook returned %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return winnow(sr.Results, k), nil
}

// normalizeQuery lowercases the query and collapses runs of whitespace so
// equivalent phrasings hit the same index entries.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// winnow drops weak matches, keeps the best passage per page, and
// returns at most k passages sorted by descending score.
func winnow(results []searchResult, k int) []triage.Passage {
	bestByPage := make(map[int]searchResult, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		if prev, ok := bestByPage[r.Page]; ok && prev.Score >= r.Score {
			continue
		}
		bestByPage[r.Page] = r
	}

	out := make([]triage.Passage, 0, len(bestByPage))
	for _, r := range bestByPage {
		out = append(out, triage.Passage{Page: r.Page, Excerpt: r.Excerpt, Score: r.Score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Page < out[j].Page
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
