package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

const (
	DefaultSuggestSize = 10
	MaxSuggestSize     = 100
)

// Suggestion is one autocomplete hit.
type Suggestion struct {
	FingerprintStrict string   `json:"fingerprint_strict"`
	Name              string   `json:"name"`
	Brand             string   `json:"brand"`
	Concentration     string   `json:"concentration,omitempty"`
	ReleaseYear       int      `json:"release_year,omitempty"`
	Score             *float64 `json:"score"`
	Relevance         float64  `json:"relevance"`
}

// Searcher answers prefix queries against the perfume index.
type Searcher struct {
	client *Client
	index  string
	logger logging.Logger
}

// NewSearcher creates a Searcher on client's index.
func NewSearcher(client *Client, logger logging.Logger) *Searcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: client, index: client.Index(), logger: logger.Named("searcher")}
}

// Suggest returns active perfumes whose name or brand starts with prefix,
// best match first and higher composite score breaking ties.
func (s *Searcher) Suggest(ctx context.Context, prefix string, size int) ([]Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New(errors.ErrCodeValidation, "suggest prefix must not be empty")
	}
	if size <= 0 {
		size = DefaultSuggestSize
	}
	if size > MaxSuggestSize {
		size = MaxSuggestSize
	}

	body, err := json.Marshal(suggestQuery(prefix, size))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal suggest query")
	}
	req := opensearchapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, s.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "suggest request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, handleErrorResponse(resp, errors.New(errors.ErrCodeExternalService, "suggest query failed"))
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Score  float64         `json:"_score"`
				Source PerfumeDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode suggest response")
	}

	out := make([]Suggestion, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, Suggestion{
			FingerprintStrict: h.Source.FingerprintStrict,
			Name:              h.Source.Name,
			Brand:             h.Source.Brand,
			Concentration:     h.Source.Concentration,
			ReleaseYear:       h.Source.ReleaseYear,
			Score:             h.Source.Score,
			Relevance:         h.Score,
		})
	}
	s.logger.Debug("suggest", logging.String("prefix", prefix), logging.Int("hits", len(out)))
	return out, nil
}

func suggestQuery(prefix string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query": prefix,
						"type":  "bool_prefix",
						"fields": []string{
							"name", "name._2gram", "name._3gram",
							"brand", "brand._2gram", "brand._3gram",
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"is_active": true}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"score": map[string]interface{}{"order": "desc", "missing": "_last"}},
		},
	}
}
