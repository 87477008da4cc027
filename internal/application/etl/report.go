package etl

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// ExclusionReason is the only reason the deduplicator drops a record.
const ExclusionReason = "Duplicate (lower Rating Count)"

// Report artifact names, relative to the run prefix.
const (
	ExclusionCSVName  = "exclusion_samples.csv"
	ExclusionJSONName = "exclusion_summary.json"
	SnapshotName      = "scored_catalog.json"
)

// ExclusionRow compares one dropped record with the survivor of its group.
type ExclusionRow struct {
	Fingerprint    string `json:"fingerprint"`
	Name           string `json:"name"`
	Brand          string `json:"brand"`
	Concentration  string `json:"concentration"`
	Year           int    `json:"year"`
	ExcludedRating int    `json:"excluded_rating"`
	KeptRating     int    `json:"kept_rating"`
	DiffImage      bool   `json:"diff_image"`
	DiffURL        bool   `json:"diff_url"`
	Reason         string `json:"reason"`
}

// ExclusionSummary carries the dataset-level dedup totals.
type ExclusionSummary struct {
	TotalRaw      int `json:"total_raw"`
	TotalImported int `json:"total_imported"`
	TotalExcluded int `json:"total_excluded"`
	Groups        int `json:"duplicate_groups"`
}

// ExclusionReport is the audit trail of one deduplication pass.
type ExclusionReport struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     ExclusionSummary `json:"summary"`
	Rows        []ExclusionRow   `json:"rows"`
	Truncated   bool             `json:"truncated"`
}

// BuildExclusionReport lists the excluded records of at most maxGroups
// duplicate groups (all when maxGroups <= 0).  The summary always covers the
// whole pass.
func BuildExclusionReport(runID string, d perfume.DedupResult, maxGroups int) *ExclusionReport {
	r := &ExclusionReport{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Summary: ExclusionSummary{
			TotalRaw:      d.InputCount,
			TotalImported: len(d.Survivors),
			TotalExcluded: d.Removed(),
			Groups:        len(d.Groups),
		},
		Rows: []ExclusionRow{},
	}
	for i, g := range d.Groups {
		if maxGroups > 0 && i >= maxGroups {
			r.Truncated = true
			break
		}
		for _, ex := range g.Excluded {
			r.Rows = append(r.Rows, ExclusionRow{
				Fingerprint:    g.Fingerprint,
				Name:           ex.Name,
				Brand:          ex.Brand,
				Concentration:  ex.Concentration,
				Year:           ex.ReleaseYear,
				ExcludedRating: ex.RatingCount,
				KeptRating:     g.Kept.RatingCount,
				DiffImage:      ex.ImageURL != g.Kept.ImageURL,
				DiffURL:        ex.URL != g.Kept.URL,
				Reason:         ExclusionReason,
			})
		}
	}
	return r
}

var exclusionHeader = []string{"Name", "Brand", "Conc", "Year", "Excluded_Rating", "Kept_Rating", "Diff_Image", "Diff_URL", "Reason"}

// CSV renders the rows semicolon-separated with a header line.
func (r *ExclusionReport) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(exclusionHeader); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportWrite, "write exclusion header")
	}
	for _, row := range r.Rows {
		rec := []string{
			row.Name,
			row.Brand,
			row.Concentration,
			strconv.Itoa(row.Year),
			strconv.Itoa(row.ExcludedRating),
			strconv.Itoa(row.KeptRating),
			strconv.FormatBool(row.DiffImage),
			strconv.FormatBool(row.DiffURL),
			row.Reason,
		}
		if err := w.Write(rec); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeReportWrite, "write exclusion row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportWrite, "flush exclusion csv")
	}
	return buf.Bytes(), nil
}

// JSON renders the whole report, summary included.
func (r *ExclusionReport) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal exclusion report")
	}
	return data, nil
}

// PublishReport writes both renderings under the run prefix and returns
// their locations.
func PublishReport(ctx context.Context, store ReportStore, r *ExclusionReport) ([]string, error) {
	csvData, err := r.CSV()
	if err != nil {
		return nil, err
	}
	jsonData, err := r.JSON()
	if err != nil {
		return nil, err
	}

	var locations []string
	for _, a := range []struct {
		name, contentType string
		data              []byte
	}{
		{ExclusionCSVName, "text/csv", csvData},
		{ExclusionJSONName, "application/json", jsonData},
	} {
		loc, err := store.Put(ctx, r.RunID+"/"+a.name, a.contentType, a.data)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// CatalogSnapshot is the scored catalog of one run.
type CatalogSnapshot struct {
	RunID        string            `json:"run_id"`
	ModelVersion int               `json:"model_version"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Count        int               `json:"count"`
	Perfumes     []perfume.Perfume `json:"perfumes"`
}

// PublishSnapshot writes the scored catalog as JSON under the run prefix.
func PublishSnapshot(ctx context.Context, store ReportStore, runID string, modelVersion int, perfumes []perfume.Perfume) (string, error) {
	data, err := json.Marshal(CatalogSnapshot{
		RunID:        runID,
		ModelVersion: modelVersion,
		GeneratedAt:  time.Now().UTC(),
		Count:        len(perfumes),
		Perfumes:     perfumes,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "marshal catalog snapshot")
	}
	loc, err := store.Put(ctx, runID+"/"+SnapshotName, "application/json", data)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSnapshotPublish, "publish catalog snapshot")
	}
	return loc, nil
}

// DirStore is a ReportStore on the local filesystem.
type DirStore struct {
	Root string
}

// Put writes data to Root/name, creating parent directories.
func (s DirStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeReportWrite, "create report dir for %s", name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeReportWrite, "write %s", path)
	}
	return path, nil
}
