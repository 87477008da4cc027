package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/search/opensearch"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// NewSuggestCmd queries the autocomplete index.
func NewSuggestCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Autocomplete active perfumes by name or brand prefix",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			infra, err := cliCtx.openInfra(ctx, bootstrap.Options{Search: true})
			if err != nil {
				return err
			}
			defer infra.Close()
			if infra.OpenSearch == nil {
				return errors.New(errors.ErrCodeFeatureDisabled, "opensearch is not enabled")
			}

			hits, err := opensearch.NewSearcher(infra.OpenSearch, cliCtx.Logger).Suggest(ctx, strings.Join(args, " "), size)
			if err != nil {
				return err
			}
			return PrintResult(cmd, suggestions(hits))
		},
	}
	cmd.Flags().IntVarP(&size, "size", "n", opensearch.DefaultSuggestSize, "maximum number of suggestions")
	return cmd
}

type suggestions []opensearch.Suggestion

func (s suggestions) TableHeaders() []string {
	return []string{"Brand", "Name", "Concentration", "Year", "Score", "Relevance"}
}

func (s suggestions) TableRows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, h := range s {
		year, score := "", ""
		if h.ReleaseYear > 0 {
			year = strconv.Itoa(h.ReleaseYear)
		}
		if h.Score != nil {
			score = strconv.FormatFloat(*h.Score, 'f', 4, 64)
		}
		rows = append(rows, []string{h.Brand, h.Name, h.Concentration, year, score, strconv.FormatFloat(h.Relevance, 'f', 2, 64)})
	}
	return rows
}

func (s suggestions) String() string {
	if len(s) == 0 {
		return "no matches\n"
	}
	var sb strings.Builder
	for _, h := range s {
		fmt.Fprintf(&sb, "%s - %s", h.Brand, h.Name)
		if h.Concentration != "" {
			fmt.Fprintf(&sb, " (%s)", h.Concentration)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
