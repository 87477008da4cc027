package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/pkg/client"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// NewStatusCmd asks a running worker for its readiness.
func NewStatusCmd() *cobra.Command {
	var addr string
	var retries int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the readiness of a running worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf("http://localhost:%d", cliCtx.Config.Server.Port)
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			c, err := client.NewClient(addr, client.WithRetryMax(retries), client.WithLogger(clientLogger{cliCtx}))
			if err != nil {
				return err
			}
			live, err := c.Liveness(ctx)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "worker is not reachable")
			}
			ready, err := c.Readiness(ctx)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "readiness probe failed")
			}

			if err := PrintResult(cmd, &workerStatus{Addr: addr, Liveness: live, Readiness: ready}); err != nil {
				return err
			}
			if !ready.Ready() {
				down := ready.Down()
				sort.Strings(down)
				return errors.Newf(errors.ErrCodeServiceUnavailable, "worker not ready: %s", strings.Join(down, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "worker ops address (default: http://localhost:<server.port>)")
	cmd.Flags().IntVar(&retries, "retries", 1, "retries on connection errors and 5xx")
	return cmd
}

// clientLogger routes client messages to the CLI logger at debug.
type clientLogger struct{ c *CLIContext }

func (l clientLogger) Debugf(format string, args ...interface{}) { l.c.Logger.Debug(fmt.Sprintf(format, args...)) }
func (l clientLogger) Infof(format string, args ...interface{})  { l.c.Logger.Debug(fmt.Sprintf(format, args...)) }
func (l clientLogger) Errorf(format string, args ...interface{}) { l.c.Logger.Debug(fmt.Sprintf(format, args...)) }

type workerStatus struct {
	Addr      string            `json:"addr"`
	Liveness  *client.Liveness  `json:"liveness"`
	Readiness *client.Readiness `json:"readiness"`
}

func (s *workerStatus) components() []string {
	names := make([]string, 0, len(s.Readiness.Components))
	for name := range s.Readiness.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableHeaders implements the table output.
func (s *workerStatus) TableHeaders() []string {
	return []string{"Component", "Status", "Latency", "Error"}
}

// TableRows implements the table output.
func (s *workerStatus) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Readiness.Components))
	for _, name := range s.components() {
		c := s.Readiness.Components[name]
		rows = append(rows, []string{name, c.Status, c.Latency, c.Error})
	}
	return rows
}

// String implements the text output.
func (s *workerStatus) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "worker:    %s (version %s, up %s)\n", s.Addr, s.Liveness.Version, s.Liveness.Uptime)
	fmt.Fprintf(&sb, "readiness: %s\n", s.Readiness.Status)
	for _, name := range s.components() {
		c := s.Readiness.Components[name]
		line := fmt.Sprintf("  %-12s %s", name, c.Status)
		if c.Error != "" {
			line += " (" + c.Error + ")"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
