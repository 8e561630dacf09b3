package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/autofill"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/model"
)

var (
	fillForm    string
	fillUser    string
	fillProject string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Auto-fill a permit form from user and project data",
	Long: `Maps each form field to a value in the user or project data, applies
transforms, generates narrative fields and validates the result.

Each flag accepts inline JSON, a path to a JSON file, or "-" for stdin.
--form-json is a list of form fields as printed by "forms fields".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := fillRequest()
		if err != nil {
			return err
		}

		if err := cfg.Validate("fill"); err != nil {
			return err
		}
		m := metrics.New()
		client, _, err := initOracle(ctx, m)
		if err != nil {
			return err
		}

		res := runFill(ctx, autofill.NewEngine(client, m), req)
		zap.L().Info("fill complete",
			zap.String("run_id", res.RunID),
			zap.Int("filled", len(res.Filled)),
			zap.Int("missing", len(res.Missing)),
			zap.Bool("ready_to_submit", res.ReadyToSubmit),
		)
		return printJSON(res)
	},
}

func fillRequest() (autofill.Request, error) {
	var req autofill.Request
	if err := decodeJSONArg("form-json", fillForm, &req.Fields); err != nil {
		return req, err
	}
	if len(req.Fields) == 0 {
		return req, eris.New("--form-json has no fields")
	}
	if err := decodeJSONArg("user-json", fillUser, &req.User); err != nil {
		return req, err
	}
	if err := decodeJSONArg("project-json", fillProject, &req.Project); err != nil {
		return req, err
	}
	if req.User == nil {
		req.User = model.Record{}
	}
	if req.Project == nil {
		req.Project = model.Record{}
	}
	return req, nil
}

// runFill records the run when the store is reachable. Filling never
// depends on it.
func runFill(ctx context.Context, e *autofill.Engine, req autofill.Request) *autofill.FillResult {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("store unavailable, fill run not recorded", zap.Error(err))
		return e.Fill(ctx, req.Fields, req.User, req.Project)
	}
	defer st.Close() //nolint:errcheck
	return e.FillLogged(ctx, st, req)
}

func init() {
	fillCmd.Flags().StringVar(&fillForm, "form-json", "", "form fields as JSON (required)")
	fillCmd.Flags().StringVar(&fillUser, "user-json", "", "user data as JSON")
	fillCmd.Flags().StringVar(&fillProject, "project-json", "", "project data as JSON")
	_ = fillCmd.MarkFlagRequired("form-json")
	rootCmd.AddCommand(fillCmd)
}
