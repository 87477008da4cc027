package bootstrap

import (
	"context"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/config"
	neo4jrepo "github.com/turtacn/fragrance-etl/internal/infrastructure/database/neo4j/repositories"
	pgrepo "github.com/turtacn/fragrance-etl/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/redis"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/search/opensearch"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/source/csvsource"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/storage/minio"
)

// ReportPrefix is the object prefix of run artifacts in the report bucket.
const ReportPrefix = "runs"

// SourceOptions converts the source section to reader options.
func SourceOptions(c config.SourceConfig) csvsource.Options {
	opts := csvsource.Options{DecimalComma: c.DecimalComma, FillUnknown: c.FillUnknown}
	for _, r := range c.Delimiter {
		opts.Delimiter = r
		break
	}
	return opts
}

// NewSource builds the catalog reader, reading s3:// locations through MinIO
// when it is connected.
func (i *Infrastructure) NewSource() *csvsource.Reader {
	var objects csvsource.ObjectOpener
	if i.MinIO != nil {
		objects = i.MinIO
	}
	return csvsource.New(SourceOptions(i.Config.Pipeline.Source), objects, i.Logger)
}

// ReportStore picks where run artifacts land: a local directory when dir is
// set, else the MinIO report bucket, else the configured report directory.
// It returns nil when none is available.
func (i *Infrastructure) ReportStore(dir string) etl.ReportStore {
	switch {
	case dir != "":
		return etl.DirStore{Root: dir}
	case i.MinIO != nil:
		return minio.NewReportStore(i.MinIO, i.Config.MinIO.ReportBucket, ReportPrefix)
	case i.Config.Pipeline.Report.Dir != "":
		return etl.DirStore{Root: i.Config.Pipeline.Report.Dir}
	}
	return nil
}

// NewLoader wires the lookup cache over Postgres, with Redis as its second
// tier when connected.  It returns nil without Postgres.
func (i *Infrastructure) NewLoader() *etl.Loader {
	if i.Postgres == nil {
		return nil
	}
	var l2 etl.LookupStore
	if i.Redis != nil {
		l2 = redis.NewLookupStore(i.Redis, i.Config.Redis.KeyPrefix, i.Config.Redis.TTL)
	}
	cache := etl.NewLookupCache(pgrepo.NewLookupRepository(i.Postgres, i.Logger), l2, i.Logger)
	p := i.Config.Pipeline
	return etl.NewLoader(cache, pgrepo.NewPerfumeRepository(i.Postgres, i.Logger), etl.LoaderConfig{
		BatchSize:    p.BatchSize,
		Concurrency:  p.LookupConcurrency,
		ModelVersion: p.ModelVersion,
	}, i.Logger)
}

// BuildPipeline assembles the pipeline over the connected components.  With
// dryRun set only the source is attached, so Run reads, scores and reports
// nothing anywhere.
func (i *Infrastructure) BuildPipeline(ctx context.Context, dryRun bool) *etl.Pipeline {
	opts := []etl.Option{etl.WithSource(i.NewSource())}
	if i.Metrics != nil {
		opts = append(opts, etl.WithMetrics(i.Metrics))
	}
	if !dryRun {
		opts = append(opts, i.sinkOptions(ctx)...)
	}
	return etl.NewPipeline(i.Config.Pipeline, i.Logger, opts...)
}

func (i *Infrastructure) sinkOptions(ctx context.Context) []etl.Option {
	var opts []etl.Option
	if l := i.NewLoader(); l != nil {
		opts = append(opts, etl.WithLoader(l))
	}
	if store := i.ReportStore(""); store != nil {
		opts = append(opts, etl.WithReportStore(store))
	}

	if i.OpenSearch != nil {
		idx := opensearch.NewIndexer(i.OpenSearch, i.Logger)
		if err := idx.EnsureIndex(ctx); err != nil {
			i.Logger.Warn("search index unavailable, runs will record an index failure", logging.Err(err))
		}
		opts = append(opts, etl.WithIndexer(idx))
	}

	if i.Neo4j != nil {
		graph := neo4jrepo.NewCatalogGraphRepo(i.Neo4j, i.Logger, i.Config.Pipeline.BatchSize)
		if err := graph.EnsureConstraints(ctx); err != nil {
			i.Logger.Warn("graph constraints not created", logging.Err(err))
		}
		opts = append(opts, etl.WithGraph(graph))
	}

	if i.Producer != nil {
		opts = append(opts, etl.WithEvents(i.Producer, i.Config.Kafka.RunCompletedTopic))
	}
	return opts
}
