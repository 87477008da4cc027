package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func duplicateFixture() perfume.DedupResult {
	kept := rec(1, "Dior", "Sauvage", "EDT", 2015, 5000)
	kept.ImageURL = "img-a"
	low := rec(0, "dior ", "SAUVAGE", "edt", 2015, 40)
	low.ImageURL = "img-b"
	mid := rec(2, "Dior", "Sauvage", "EDT", 2015, 300)
	mid.ImageURL = "img-a"
	mid.URL = kept.URL
	other := rec(3, "Dior", "Fahrenheit", "EDT", 1988, 2000)
	return perfume.Deduplicate([]perfume.RawRecord{low, kept, mid, other})
}

func TestBuildExclusionReport(t *testing.T) {
	r := BuildExclusionReport("run-1", duplicateFixture(), 0)

	assert.Equal(t, ExclusionSummary{TotalRaw: 4, TotalImported: 2, TotalExcluded: 2, Groups: 1}, r.Summary)
	require.Len(t, r.Rows, 2)
	assert.False(t, r.Truncated)

	assert.Equal(t, 300, r.Rows[0].ExcludedRating, "excluded rows are ordered by rating")
	assert.Equal(t, 5000, r.Rows[0].KeptRating)
	assert.False(t, r.Rows[0].DiffImage)
	assert.False(t, r.Rows[0].DiffURL)

	assert.Equal(t, 40, r.Rows[1].ExcludedRating)
	assert.True(t, r.Rows[1].DiffImage)
	assert.Equal(t, ExclusionReason, r.Rows[1].Reason)
}

func TestBuildExclusionReport_CapsGroups(t *testing.T) {
	var recs []perfume.RawRecord
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("P%d", i)
		recs = append(recs, rec(len(recs), "B", name, "EDP", 2000, 10), rec(len(recs)+1, "B", name, "EDP", 2000, 5))
	}
	r := BuildExclusionReport("run-2", perfume.Deduplicate(recs), 3)

	assert.True(t, r.Truncated)
	assert.Len(t, r.Rows, 3)
	assert.Equal(t, 5, r.Summary.TotalExcluded, "summary covers every group")
}

func TestExclusionReport_CSV(t *testing.T) {
	data, err := BuildExclusionReport("run-1", duplicateFixture(), 0).CSV()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name;Brand;Conc;Year;Excluded_Rating;Kept_Rating;Diff_Image;Diff_URL;Reason", lines[0])
	assert.Equal(t, "Sauvage;Dior;EDT;2015;300;5000;false;false;Duplicate (lower Rating Count)", lines[1])
}

func TestPublishReport_DirStore(t *testing.T) {
	dir := t.TempDir()
	r := BuildExclusionReport("run-9", duplicateFixture(), 0)

	locs, err := PublishReport(context.Background(), DirStore{Root: dir}, r)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, filepath.Join(dir, "run-9", ExclusionCSVName), locs[0])

	raw, err := os.ReadFile(locs[1])
	require.NoError(t, err)
	var decoded struct {
		Summary map[string]int `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 4, decoded.Summary["total_raw"])
	assert.Equal(t, 2, decoded.Summary["total_imported"])
	assert.Equal(t, 2, decoded.Summary["total_excluded"])
}

func TestPublishReport_StoreError(t *testing.T) {
	store := &memReportStore{err: fmt.Errorf("bucket missing")}
	_, err := PublishReport(context.Background(), store, BuildExclusionReport("r", duplicateFixture(), 0))
	assert.Error(t, err)
}

func TestPublishSnapshot(t *testing.T) {
	store := &memReportStore{}
	score := 0.42
	perfumes := []perfume.Perfume{{
		RawRecord:         perfume.RawRecord{Brand: "Dior", Name: "Sauvage"},
		FingerprintStrict: "dior|sauvage",
		Score:             &score,
		IsActive:          true,
	}}

	loc, err := PublishSnapshot(context.Background(), store, "run-3", 2, perfumes)
	require.NoError(t, err)
	assert.Equal(t, "mem://run-3/"+SnapshotName, loc)

	var snap CatalogSnapshot
	require.NoError(t, json.Unmarshal(store.files["run-3/"+SnapshotName], &snap))
	assert.Equal(t, "run-3", snap.RunID)
	assert.Equal(t, 2, snap.ModelVersion)
	assert.Equal(t, 1, snap.Count)
	require.Len(t, snap.Perfumes, 1)
	assert.Equal(t, "dior|sauvage", snap.Perfumes[0].FingerprintStrict)
	require.NotNil(t, snap.Perfumes[0].Score)
	assert.Equal(t, 0.42, *snap.Perfumes[0].Score)
}

func TestPublishSnapshot_StoreError(t *testing.T) {
	_, err := PublishSnapshot(context.Background(), &memReportStore{err: fmt.Errorf("denied")}, "r", 1, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotPublish))
}
