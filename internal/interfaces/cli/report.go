package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

type reportOptions struct {
	source    string
	outDir    string
	maxGroups int
}

// NewReportCmd builds the dedup exclusion report of a catalog without
// loading it anywhere.
func NewReportCmd() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report [location]",
		Short: "Write the duplicate exclusion report of a catalog",
		Long: "Deduplicate the catalog and write exclusion_samples.csv and exclusion_summary.json\n" +
			"under <run_id>/ in --out, or in the MinIO report bucket when MinIO is enabled.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && opts.source == "" {
				opts.source = args[0]
			}
			return runReport(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "catalog location (default: pipeline.source.location)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "local output directory (default: MinIO, else pipeline.report.dir)")
	cmd.Flags().IntVar(&opts.maxGroups, "max-groups", 0, "duplicate groups to sample (default: pipeline.report.max_groups)")
	return cmd
}

func runReport(cmd *cobra.Command, opts *reportOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if opts.maxGroups < 0 {
		return errors.Newf(errors.ErrCodeValidation, "--max-groups must not be negative, got %d", opts.maxGroups)
	}
	ctx, cancel := cliCtx.commandContext(cmd)
	defer cancel()

	infra, err := cliCtx.openInfra(ctx, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer infra.Close()

	store := infra.ReportStore(opts.outDir)
	if store == nil {
		return errors.New(errors.ErrCodeFeatureDisabled, "no report destination: pass --out or configure minio or pipeline.report.dir")
	}

	cfg := cliCtx.Config.Pipeline
	location := opts.source
	if location == "" {
		location = cfg.Source.Location
	}
	records, err := infra.NewSource().Read(ctx, location)
	if err != nil {
		return err
	}
	res, err := infra.BuildPipeline(ctx, true).Process(ctx, records)
	if err != nil {
		return err
	}

	maxGroups := cfg.Report.MaxGroups
	if opts.maxGroups > 0 {
		maxGroups = opts.maxGroups
	}
	rep := etl.BuildExclusionReport(res.RunID, res.Dedup, maxGroups)
	locations, err := etl.PublishReport(ctx, store, rep)
	if err != nil {
		return err
	}
	return PrintResult(cmd, &ReportResult{Report: rep, Locations: locations})
}

// ReportResult is the printable outcome of the report command.
type ReportResult struct {
	Report    *etl.ExclusionReport `json:"report"`
	Locations []string             `json:"locations"`
}

// TableHeaders implements the table output.
func (r *ReportResult) TableHeaders() []string {
	return []string{"Name", "Brand", "Concentration", "Year", "Excluded", "Kept", "Image Differs", "URL Differs"}
}

// TableRows implements the table output.
func (r *ReportResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Report.Rows))
	for _, row := range r.Report.Rows {
		rows = append(rows, []string{
			row.Name,
			row.Brand,
			row.Concentration,
			strconv.Itoa(row.Year),
			strconv.Itoa(row.ExcludedRating),
			strconv.Itoa(row.KeptRating),
			strconv.FormatBool(row.DiffImage),
			strconv.FormatBool(row.DiffURL),
		})
	}
	return rows
}

// String implements the text output.
func (r *ReportResult) String() string {
	var sb strings.Builder
	s := r.Report.Summary
	fmt.Fprintf(&sb, "run_id:    %s\n", r.Report.RunID)
	fmt.Fprintf(&sb, "raw:       %d\n", s.TotalRaw)
	fmt.Fprintf(&sb, "imported:  %d\n", s.TotalImported)
	fmt.Fprintf(&sb, "excluded:  %d\n", s.TotalExcluded)
	fmt.Fprintf(&sb, "groups:    %d\n", s.Groups)
	fmt.Fprintf(&sb, "sampled:   %d row(s)", len(r.Report.Rows))
	if r.Report.Truncated {
		sb.WriteString(" (truncated)")
	}
	sb.WriteString("\n")
	for _, loc := range r.Locations {
		fmt.Fprintf(&sb, "written:   %s\n", loc)
	}
	return sb.String()
}
