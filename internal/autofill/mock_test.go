package autofill

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

// --- Oracle Mock ---

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Generate(ctx context.Context, prompt string, format oracle.Format) (string, error) {
	args := m.Called(ctx, prompt, format)
	return args.String(0), args.Error(1)
}

// countingOracle replies with a fixed answer per format and counts calls.
type countingOracle struct {
	mu         sync.Mutex
	structured string
	text       string
	err        error
	calls      int
	prompts    []string
}

func (c *countingOracle) Generate(_ context.Context, prompt string, format oracle.Format) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if format == oracle.FormatStructured {
		return c.structured, nil
	}
	return c.text, nil
}

func (c *countingOracle) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func userData() model.Record {
	return model.Record{
		"name":  "John Smith",
		"email": "john@example.com",
		"phone": "512-555-1234",
		"property": map[string]any{
			"address":   "123 Main St",
			"city":      "Austin",
			"state":     "TX",
			"zip":       "78701",
			"parcel_id": "ABC123",
		},
	}
}

func projectData() model.Record {
	return model.Record{
		"description":  "12x16 foot deck attached to the back of the house",
		"project_type": "deck_construction",
		"start_date":   "2026-11-02",
		"value":        8640.0,
		"details": map[string]any{
			"materials": "pressure-treated wood",
			"attached":  true,
			"height":    2.0,
			"notes":     nil,
		},
	}
}

// --- Run Log Mock ---

type mockRunLog struct {
	mock.Mock
}

func (m *mockRunLog) CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error) {
	args := m.Called(ctx, kind, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockRunLog) CompleteRun(ctx context.Context, runID string, result any, runErr error) error {
	args := m.Called(ctx, runID, result, runErr)
	return args.Error(0)
}
