package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
)

const catalogCSV = "Brand;Name;Concentration;Release Year;Rating Count;Rating Value;Gender;Top Notes;URL\n" +
	"Guerlain;Shalimar;EDP;1925;8000;4.2;Female;Bergamot, Lemon;https://example.com/1\n" +
	"guerlain;SHALIMAR;edp;1925;12;3.9;Female;Bergamot;https://example.com/2\n" +
	"Chanel;No 5;Parfum;1921;9000;4.1;Female;Aldehydes;https://example.com/3\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Pipeline.Report.Dir = t.TempDir()
	return cfg
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(catalogCSV), 0o644))
	return path
}

func TestOpen_NothingEnabled(t *testing.T) {
	infra, err := Open(context.Background(), testConfig(t), logging.NewNopLogger(), Options{Sinks: true, Search: true})
	require.NoError(t, err)
	defer infra.Close()

	assert.Empty(t, infra.Components())
	assert.Empty(t, infra.HealthChecks())
	assert.Nil(t, infra.NewLoader())
}

func TestOpen_Metrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true

	infra, err := Open(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer infra.Close()

	require.NotNil(t, infra.Metrics)
	assert.Equal(t, []string{"metrics"}, infra.Components())
}

func TestSourceOptions(t *testing.T) {
	opts := SourceOptions(config.SourceConfig{Delimiter: ",", DecimalComma: true, FillUnknown: true})
	assert.Equal(t, ',', opts.Delimiter)
	assert.True(t, opts.DecimalComma)
	assert.True(t, opts.FillUnknown)

	assert.Equal(t, rune(0), SourceOptions(config.SourceConfig{}).Delimiter)
}

func TestReportStore_Selection(t *testing.T) {
	cfg := testConfig(t)
	infra := &Infrastructure{Config: cfg, Logger: logging.NewNopLogger()}

	assert.Equal(t, etl.DirStore{Root: "/tmp/override"}, infra.ReportStore("/tmp/override"))
	assert.Equal(t, etl.DirStore{Root: cfg.Pipeline.Report.Dir}, infra.ReportStore(""))

	cfg.Pipeline.Report.Dir = ""
	assert.Nil(t, infra.ReportStore(""))
}

func TestBuildPipeline_DryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Report.Enabled = true
	infra := &Infrastructure{Config: cfg, Logger: logging.NewNopLogger()}

	sum, err := infra.BuildPipeline(context.Background(), true).Run(context.Background(), writeCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Result.Input)
	assert.Len(t, sum.Result.Perfumes, 2)
	assert.Nil(t, sum.Sync)
	assert.Empty(t, sum.Reports)
	assert.Empty(t, sum.SinkFailures)
}

func TestBuildPipeline_WritesReportsToDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Report.Enabled = true
	infra := &Infrastructure{Config: cfg, Logger: logging.NewNopLogger()}

	sum, err := infra.BuildPipeline(context.Background(), false).Run(context.Background(), writeCatalog(t))
	require.NoError(t, err)

	require.Len(t, sum.Reports, 3)
	for _, loc := range sum.Reports {
		assert.FileExists(t, loc)
	}
	assert.Equal(t, etl.SnapshotName, filepath.Base(sum.Reports[2]))
}
