package autofill

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
)

// Request is one fill request as accepted by the CLI and the API.
type Request struct {
	Fields  []model.FormField `json:"form_structure"`
	User    model.Record      `json:"user_data"`
	Project model.Record      `json:"project_data"`
}

// RunLog persists fill runs. store.Store satisfies it.
type RunLog interface {
	CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result any, runErr error) error
}

// FillLogged fills req and records the request and result in runs. A run
// log failure is logged and leaves RunID empty; the fill still happens.
func (e *Engine) FillLogged(ctx context.Context, runs RunLog, req Request) *FillResult {
	run, err := runs.CreateRun(ctx, model.RunKindFill, req)
	if err != nil {
		zap.L().Warn("autofill: failed to create run", zap.Error(err))
		return e.Fill(ctx, req.Fields, req.User, req.Project)
	}

	res := e.Fill(ctx, req.Fields, req.User, req.Project)
	res.RunID = run.ID
	if err := runs.CompleteRun(context.WithoutCancel(ctx), run.ID, res, nil); err != nil {
		zap.L().Warn("autofill: failed to complete run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return res
}
