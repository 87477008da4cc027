package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
)

// DefaultScoreTop is how many perfumes score lists by default.
const DefaultScoreTop = 20

type runOptions struct {
	source string
	dryRun bool
	top    int
}

// NewRunCmd runs the full pipeline: read, score, sync and the sinks.
func NewRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [location]",
		Short: "Import the catalog into the store and its sinks",
		Long: "Read the catalog from a local path or s3://bucket/key, deduplicate and score it,\n" +
			"then upsert it into Postgres and feed every enabled sink.  --dry-run stops after scoring.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && opts.source == "" {
				opts.source = args[0]
			}
			return runPipeline(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "catalog location (default: pipeline.source.location)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "score without writing anywhere")
	return cmd
}

// NewScoreCmd runs the pipeline without any sink and lists the best scores.
func NewScoreCmd() *cobra.Command {
	opts := &runOptions{dryRun: true}
	cmd := &cobra.Command{
		Use:   "score [location]",
		Short: "Score the catalog without writing anywhere",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && opts.source == "" {
				opts.source = args[0]
			}
			return runPipeline(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "catalog location (default: pipeline.source.location)")
	cmd.Flags().IntVar(&opts.top, "top", DefaultScoreTop, "number of top-scored perfumes to list")
	return cmd
}

func runPipeline(cmd *cobra.Command, opts *runOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.commandContext(cmd)
	defer cancel()

	infra, err := cliCtx.openInfra(ctx, bootstrap.Options{Store: !opts.dryRun, Sinks: !opts.dryRun})
	if err != nil {
		return err
	}
	defer infra.Close()

	sum, err := infra.BuildPipeline(ctx, opts.dryRun).Run(ctx, opts.source)
	if infra.Metrics != nil {
		infra.Metrics.RecordRun(err, time.Now())
	}
	if err != nil {
		return err
	}

	cliCtx.Logger.Debug("run summary",
		logging.String("run_id", sum.Result.RunID),
		logging.Int("sink_failures", len(sum.SinkFailures)))

	report := NewRunReport(sum, opts.dryRun)
	if opts.top > 0 {
		return PrintResult(cmd, ScoreReport{RunReport: report, Top: TopScored(sum.Result.Perfumes, opts.top)})
	}
	return PrintResult(cmd, report)
}

// RunReport is the printable outcome of a run.
type RunReport struct {
	RunID        string            `json:"run_id"`
	Source       string            `json:"source"`
	DryRun       bool              `json:"dry_run"`
	Totals       etl.RunTotals     `json:"totals"`
	Eligible     int               `json:"eligible"`
	Threshold    int               `json:"threshold"`
	Fallback     bool              `json:"fallback"`
	MeanScore    float64           `json:"mean_score"`
	Warnings     []string          `json:"warnings,omitempty"`
	Indexed      int               `json:"indexed"`
	Reports      []string          `json:"reports,omitempty"`
	SinkFailures map[string]string `json:"sink_failures,omitempty"`
	Elapsed      string            `json:"elapsed"`
}

// NewRunReport flattens a pipeline summary.
func NewRunReport(sum *etl.Summary, dryRun bool) *RunReport {
	r := &RunReport{
		Source:       sum.Source,
		DryRun:       dryRun,
		Indexed:      sum.Indexed,
		Reports:      sum.Reports,
		SinkFailures: sum.SinkFailures,
		Elapsed:      sum.Elapsed.Round(time.Millisecond).String(),
	}
	if len(r.SinkFailures) == 0 {
		r.SinkFailures = nil
	}
	if evt := sum.Event; evt != nil {
		r.RunID = evt.RunID
		r.Totals = evt.Totals
		r.Eligible = evt.Eligible
		r.Threshold = evt.Threshold
		r.Fallback = evt.Fallback
		r.MeanScore = evt.MeanScore
		r.Warnings = evt.Warnings
	}
	return r
}

// TableHeaders implements the table output.
func (r *RunReport) TableHeaders() []string { return []string{"Metric", "Value"} }

// TableRows implements the table output.
func (r *RunReport) TableRows() [][]string {
	rows := [][]string{
		{"run_id", r.RunID},
		{"source", r.Source},
		{"read", strconv.Itoa(r.Totals.Read)},
		{"imported", strconv.Itoa(r.Totals.Imported)},
		{"excluded", strconv.Itoa(r.Totals.Excluded)},
		{"eligible", strconv.Itoa(r.Eligible)},
		{"threshold", strconv.Itoa(r.Threshold)},
		{"fallback", strconv.FormatBool(r.Fallback)},
		{"mean_score", strconv.FormatFloat(r.MeanScore, 'f', 4, 64)},
	}
	if !r.DryRun {
		rows = append(rows,
			[]string{"upserted", strconv.Itoa(r.Totals.Upserted)},
			[]string{"rejected", strconv.Itoa(r.Totals.Rejected)},
			[]string{"failed", strconv.Itoa(r.Totals.Failed)},
			[]string{"indexed", strconv.Itoa(r.Indexed)},
		)
	}
	for _, w := range r.Warnings {
		rows = append(rows, []string{"warning", w})
	}
	for _, loc := range r.Reports {
		rows = append(rows, []string{"report", loc})
	}
	for _, sink := range sortedKeys(r.SinkFailures) {
		rows = append(rows, []string{"failed_sink:" + sink, r.SinkFailures[sink]})
	}
	rows = append(rows, []string{"elapsed", r.Elapsed})
	return rows
}

// String implements the text output.
func (r *RunReport) String() string {
	var sb strings.Builder
	for _, row := range r.TableRows() {
		fmt.Fprintf(&sb, "%-12s %s\n", row[0]+":", row[1])
	}
	return sb.String()
}

// ScoredPerfume is one line of the score listing.
type ScoredPerfume struct {
	Rank          int     `json:"rank"`
	Brand         string  `json:"brand"`
	Name          string  `json:"name"`
	Concentration string  `json:"concentration"`
	ReleaseYear   int     `json:"release_year"`
	Score         float64 `json:"score"`
	Active        bool    `json:"is_active"`
}

// ScoreReport adds the best-scored perfumes to a run report.
type ScoreReport struct {
	*RunReport
	Top []ScoredPerfume `json:"top"`
}

// TableHeaders implements the table output.
func (r ScoreReport) TableHeaders() []string {
	return []string{"Rank", "Brand", "Name", "Concentration", "Year", "Score", "Active"}
}

// TableRows implements the table output.
func (r ScoreReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Top))
	for _, p := range r.Top {
		year := ""
		if p.ReleaseYear > 0 {
			year = strconv.Itoa(p.ReleaseYear)
		}
		rows = append(rows, []string{
			strconv.Itoa(p.Rank),
			p.Brand,
			p.Name,
			p.Concentration,
			year,
			strconv.FormatFloat(p.Score, 'f', 4, 64),
			strconv.FormatBool(p.Active),
		})
	}
	return rows
}

// String implements the text output.
func (r ScoreReport) String() string {
	return r.RunReport.String() + "\n" + FormatTable(r.TableHeaders(), r.TableRows())
}

// TopScored returns the n best-scored perfumes, highest first.  Ineligible
// perfumes have no score and are left out; ties keep catalog order.
func TopScored(perfumes []perfume.Perfume, n int) []ScoredPerfume {
	scored := make([]perfume.Perfume, 0, len(perfumes))
	for _, p := range perfumes {
		if p.Score != nil {
			scored = append(scored, p)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return *scored[i].Score > *scored[j].Score })
	if len(scored) > n {
		scored = scored[:n]
	}

	out := make([]ScoredPerfume, len(scored))
	for i, p := range scored {
		out[i] = ScoredPerfume{
			Rank:          i + 1,
			Brand:         p.Brand,
			Name:          p.Name,
			Concentration: p.Concentration,
			ReleaseYear:   p.ReleaseYear,
			Score:         *p.Score,
			Active:        p.IsActive,
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
