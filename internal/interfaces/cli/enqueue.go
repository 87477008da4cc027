package cli

import (
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// NewEnqueueCmd asks the worker fleet to import a catalog.
func NewEnqueueCmd() *cobra.Command {
	var requestedBy string
	cmd := &cobra.Command{
		Use:   "enqueue <location>",
		Short: "Publish an import request for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			infra, err := cliCtx.openInfra(ctx, bootstrap.Options{Producer: true})
			if err != nil {
				return err
			}
			defer infra.Close()
			if infra.Producer == nil {
				return errors.New(errors.ErrCodeFeatureDisabled, "kafka is not enabled")
			}

			if requestedBy == "" {
				requestedBy = currentUser()
			}
			req := etl.ImportRequested{Source: args[0], RequestedBy: requestedBy, RequestedAt: time.Now().UTC()}
			topic := cliCtx.Config.Kafka.ImportRequestedTopic
			if err := infra.Producer.PublishJSON(ctx, topic, req.Source, req); err != nil {
				return err
			}
			PrintSuccess(cmd, "import of "+req.Source+" requested on "+topic)
			return nil
		},
	}
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requester recorded on the event (default: current user)")
	return cmd
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
