package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
)

var (
	discoverAddress     string
	discoverDescription string
	discoverType        string
	discoverDetails     string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the permits a project needs",
	Long: `Resolves the permit authority for --address, classifies the project and
reconciles the authority's rule tables with the oracle. Prints the required
permits, their forms, the application workflow and cost/timeline totals.

--details-json accepts inline JSON or a path to a JSON file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := model.ProjectInput{
			Description: discoverDescription,
			Address:     discoverAddress,
			ProjectType: discoverType,
		}
		if err := decodeJSONArg("details-json", discoverDetails, &in.Details); err != nil {
			return err
		}

		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Discovery.Discover(ctx, in)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		zap.L().Info("discovery complete",
			zap.String("run_id", res.RunID),
			zap.String("jurisdiction", res.Jurisdiction.Authority.ID),
			zap.Int("permits", len(res.Permits)),
			zap.Strings("degradations", res.Degradations),
		)
		return printJSON(res)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverAddress, "address", "", "project street address (required)")
	discoverCmd.Flags().StringVar(&discoverDescription, "description", "", "free-text project description (required)")
	discoverCmd.Flags().StringVar(&discoverType, "type", "", "project type hint, e.g. new_construction or alteration")
	discoverCmd.Flags().StringVar(&discoverDetails, "details-json", "", "extra project details as JSON")
	_ = discoverCmd.MarkFlagRequired("address")
	_ = discoverCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(discoverCmd)
}
