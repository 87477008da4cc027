package etl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// memLookupRepo is an in-memory LookupRepository keyed by exact name.
type memLookupRepo struct {
	mu      sync.Mutex
	rows    map[perfume.LookupTable]map[string]string
	slugs   map[string]string
	seq     int
	finds   atomic.Int64
	creates atomic.Int64

	failFind   map[string]bool
	failCreate map[string]bool
	// raceCreate simulates a concurrent writer: Create reports a conflict
	// after inserting the row itself.
	raceCreate map[string]bool
	listErr    error
}

func newMemLookupRepo() *memLookupRepo {
	return &memLookupRepo{
		rows:       map[perfume.LookupTable]map[string]string{},
		slugs:      map[string]string{},
		failFind:   map[string]bool{},
		failCreate: map[string]bool{},
		raceCreate: map[string]bool{},
	}
}

func (r *memLookupRepo) seed(t perfume.LookupTable, name, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[t] == nil {
		r.rows[t] = map[string]string{}
	}
	r.rows[t][name] = id
}

func (r *memLookupRepo) FindID(_ context.Context, t perfume.LookupTable, value string) (string, bool, error) {
	r.finds.Add(1)
	if r.failFind[value] {
		return "", false, fmt.Errorf("connection reset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.rows[t][value]
	return id, ok, nil
}

func (r *memLookupRepo) Create(_ context.Context, t perfume.LookupTable, value, slug string) (string, error) {
	r.creates.Add(1)
	if r.failCreate[value] {
		return "", errors.New(errors.ErrCodeDatabaseError, "insert failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[t] == nil {
		r.rows[t] = map[string]string{}
	}
	r.seq++
	id := fmt.Sprintf("%s-%d", t, r.seq)
	r.rows[t][value] = id
	r.slugs[id] = slug
	if r.raceCreate[value] {
		return "", errors.New(errors.ErrCodeConflict, "duplicate key")
	}
	return id, nil
}

func (r *memLookupRepo) ListAll(_ context.Context, t perfume.LookupTable) (map[string]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.rows[t]))
	for k, v := range r.rows[t] {
		out[k] = v
	}
	return out, nil
}

// memLookupStore is an in-memory LookupStore.
type memLookupStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemLookupStore() *memLookupStore { return &memLookupStore{data: map[string]string{}} }

func (s *memLookupStore) Get(_ context.Context, t perfume.LookupTable, key string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data[string(t)+":"+key]
	return id, ok, nil
}

func (s *memLookupStore) Set(_ context.Context, t perfume.LookupTable, key, id string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(t)+":"+key] = id
	return nil
}

// recordingWriter captures upserted batches and fails on demand.
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]perfume.PerfumeRow
	// failBatchesOver fails any call with more rows than this (0 disables).
	failBatchesOver int
	failSlugs       map[string]bool
}

func (w *recordingWriter) UpsertBatch(_ context.Context, rows []perfume.PerfumeRow) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failBatchesOver > 0 && len(rows) > w.failBatchesOver {
		return 0, errors.New(errors.ErrCodeUpsertFailed, "batch rejected")
	}
	for _, r := range rows {
		if w.failSlugs[r.SourceRecordSlug] {
			return 0, errors.New(errors.ErrCodeUpsertFailed, "row rejected")
		}
	}
	w.batches = append(w.batches, append([]perfume.PerfumeRow(nil), rows...))
	return int64(len(rows)), nil
}

func (w *recordingWriter) rows() []perfume.PerfumeRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []perfume.PerfumeRow
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

type MockSource struct{ mock.Mock }

func (m *MockSource) Read(ctx context.Context, location string) ([]perfume.RawRecord, error) {
	args := m.Called(ctx, location)
	recs, _ := args.Get(0).([]perfume.RawRecord)
	return recs, args.Error(1)
}

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexPerfumes(ctx context.Context, perfumes []perfume.Perfume) (int, error) {
	args := m.Called(ctx, perfumes)
	return args.Int(0), args.Error(1)
}

type MockGraph struct{ mock.Mock }

func (m *MockGraph) SyncPerfumes(ctx context.Context, perfumes []perfume.Perfume) error {
	return m.Called(ctx, perfumes).Error(0)
}

type MockEvents struct{ mock.Mock }

func (m *MockEvents) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	return m.Called(ctx, topic, key, v).Error(0)
}

// memReportStore keeps artifacts in memory.
type memReportStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (s *memReportStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[name] = data
	return "mem://" + name, nil
}

// countingMetrics records every call.
type countingMetrics struct {
	mu       sync.Mutex
	stages   map[string]int
	records  map[string]int
	warnings map[string]int
	failures map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{stages: map[string]int{}, records: map[string]int{}, warnings: map[string]int{}, failures: map[string]int{}}
}

func (m *countingMetrics) ObserveStage(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

func (m *countingMetrics) SetRecords(kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[kind] = n
}

func (m *countingMetrics) IncWarning(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings[kind]++
}

func (m *countingMetrics) IncSinkFailure(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[sink]++
}

func rec(pos int, brand, name, conc string, year, ratings int) perfume.RawRecord {
	return perfume.RawRecord{
		Position:      pos,
		Brand:         brand,
		Name:          name,
		Concentration: conc,
		Manufacturer:  perfume.UnknownValue,
		ReleaseYear:   year,
		Gender:        perfume.GenderUnisex,
		RatingCount:   ratings,
		TopNotes:      "Bergamot, Lemon",
		MiddleNotes:   "Rose",
		BaseNotes:     "Musk",
		Perfumers:     "Jane Doe",
		URL:           "https://example.com/" + strings.ToLower(strings.ReplaceAll(name, " ", "-")),
	}
}
