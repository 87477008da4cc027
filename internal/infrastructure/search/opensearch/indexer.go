package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// DefaultBulkSize bounds one bulk request when the configuration is silent.
const DefaultBulkSize = 500

var ErrIndexCreationFailed = errors.New(errors.ErrCodeIndexFailed, "index creation failed")

// IndexMapping is the body of an index-create request.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Mappings map[string]interface{} `json:"mappings"`
}

// PerfumeDocument is the indexed form of a surviving record.  Inactive records
// are indexed too; queries filter on is_active.
type PerfumeDocument struct {
	FingerprintStrict string   `json:"fingerprint_strict"`
	FingerprintLoose  string   `json:"fingerprint_loose"`
	Name              string   `json:"name"`
	Brand             string   `json:"brand"`
	Concentration     string   `json:"concentration,omitempty"`
	ReleaseYear       int      `json:"release_year,omitempty"`
	Gender            string   `json:"gender,omitempty"`
	Score             *float64 `json:"score"`
	IsActive          bool     `json:"is_active"`
}

// NewPerfumeDocument projects p onto the index document.
func NewPerfumeDocument(p perfume.Perfume) PerfumeDocument {
	return PerfumeDocument{
		FingerprintStrict: p.FingerprintStrict,
		FingerprintLoose:  p.FingerprintLoose,
		Name:              p.Name,
		Brand:             p.Brand,
		Concentration:     p.Concentration,
		ReleaseYear:       p.ReleaseYear,
		Gender:            perfume.CanonicalGender(p.Gender),
		Score:             p.Score,
		IsActive:          p.IsActive,
	}
}

// PerfumeIndexMapping types name and brand for prefix completion.
func PerfumeIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		Mappings: map[string]interface{}{
			"dynamic": "strict",
			"properties": map[string]interface{}{
				"fingerprint_strict": map[string]interface{}{"type": "keyword"},
				"fingerprint_loose":  map[string]interface{}{"type": "keyword"},
				"name":               map[string]interface{}{"type": "search_as_you_type"},
				"brand":              map[string]interface{}{"type": "search_as_you_type"},
				"concentration":      map[string]interface{}{"type": "keyword"},
				"release_year":       map[string]interface{}{"type": "integer"},
				"gender":             map[string]interface{}{"type": "keyword"},
				"score":              map[string]interface{}{"type": "double"},
				"is_active":          map[string]interface{}{"type": "boolean"},
			},
		},
	}
}

// Indexer writes perfume documents to the configured index.
type Indexer struct {
	client   *Client
	index    string
	bulkSize int
	logger   logging.Logger
}

// NewIndexer creates an Indexer on client's index.
func NewIndexer(client *Client, logger logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	size := client.cfg.BulkSize
	if size <= 0 {
		size = DefaultBulkSize
	}
	return &Indexer{client: client, index: client.Index(), bulkSize: size, logger: logger.Named("indexer")}
}

// EnsureIndex creates the index with PerfumeIndexMapping when it is missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.IndexExists(ctx)
	if err != nil || exists {
		return err
	}

	body, err := json.Marshal(PerfumeIndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	req := opensearchapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexFailed, "create index request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return handleErrorResponse(resp, ErrIndexCreationFailed)
	}
	i.logger.Info("index created", logging.String("index", i.index))
	return nil
}

// IndexExists reports whether the index exists.
func (i *Indexer) IndexExists(ctx context.Context) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeIndexFailed, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, handleErrorResponse(resp, errors.New(errors.ErrCodeIndexFailed, "check index existence failed"))
}

// IndexPerfumes bulk-indexes perfumes keyed by strict fingerprint, in input
// order and in batches of the configured bulk size.  It returns the number of
// documents acknowledged; rejected items are reported in one error after all
// batches are sent.
func (i *Indexer) IndexPerfumes(ctx context.Context, perfumes []perfume.Perfume) (int, error) {
	indexed, failed := 0, 0
	var firstReason string

	for start := 0; start < len(perfumes); start += i.bulkSize {
		end := start + i.bulkSize
		if end > len(perfumes) {
			end = len(perfumes)
		}
		ok, rejected, err := i.sendBatch(ctx, perfumes[start:end])
		indexed += ok
		if err != nil {
			return indexed, err
		}
		failed += len(rejected)
		if firstReason == "" && len(rejected) > 0 {
			firstReason = rejected[0]
		}
	}

	i.logger.Info("perfumes indexed",
		logging.String("index", i.index),
		logging.Int("total", len(perfumes)),
		logging.Int("indexed", indexed),
		logging.Int("failed", failed))

	if failed > 0 {
		return indexed, errors.Newf(errors.ErrCodeIndexFailed, "%d document(s) rejected", failed).WithDetail(firstReason)
	}
	return indexed, nil
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (i *Indexer) sendBatch(ctx context.Context, batch []perfume.Perfume) (int, []string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range batch {
		meta := map[string]map[string]string{"index": {"_index": i.index, "_id": p.FingerprintStrict}}
		if err := enc.Encode(meta); err != nil {
			return 0, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
		}
		if err := enc.Encode(NewPerfumeDocument(p)); err != nil {
			return 0, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode perfume document")
		}
	}

	req := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeIndexFailed, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, nil, handleErrorResponse(resp, errors.New(errors.ErrCodeIndexFailed, "bulk batch failed"))
	}

	var bulkResp struct {
		Errors bool                  `json:"errors"`
		Items  []map[string]bulkItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !bulkResp.Errors {
		return len(bulkResp.Items), nil, nil
	}

	ok := 0
	var rejected []string
	for _, entry := range bulkResp.Items {
		// Each entry has a single key naming the action.
		for _, item := range entry {
			if item.Status >= 200 && item.Status < 300 {
				ok++
				continue
			}
			rejected = append(rejected, fmt.Sprintf("%s: %s %s", item.ID, item.Error.Type, item.Error.Reason))
			i.logger.Warn("document rejected",
				logging.String("id", item.ID),
				logging.Int("status", item.Status),
				logging.String("reason", item.Error.Reason))
		}
	}
	return ok, rejected, nil
}

func handleErrorResponse(resp *opensearchapi.Response, base *errors.AppError) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Reason != "" {
		return base.WithDetail(fmt.Sprintf("status %d: %s - %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Reason))
	}
	return base.WithDetail(fmt.Sprintf("status %d", resp.StatusCode))
}
