package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/permit-cli/internal/forms"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
	"github.com/sells-group/permit-cli/pkg/geocode"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListRules(ctx context.Context, jurisdictionID string) ([]model.Rule, error) {
	args := m.Called(ctx, jurisdictionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Rule), args.Error(1)
}

func (m *mockStore) SearchRegulations(ctx context.Context, jurisdictionID, query string, limit int) ([]model.RegulatorySnippet, error) {
	args := m.Called(ctx, jurisdictionID, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RegulatorySnippet), args.Error(1)
}

func (m *mockStore) GetFormTemplate(ctx context.Context, jurisdictionID, permitType string, maxAge time.Duration) (*model.FormTemplate, error) {
	args := m.Called(ctx, jurisdictionID, permitType, maxAge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FormTemplate), args.Error(1)
}

func (m *mockStore) PutFormTemplate(ctx context.Context, tmpl *model.FormTemplate) error {
	args := m.Called(ctx, tmpl)
	return args.Error(0)
}

func (m *mockStore) FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error) {
	args := m.Called(ctx, jurisdictionID, permitType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeSchedule), args.Error(1)
}

func (m *mockStore) LocateJurisdiction(ctx context.Context, lat, lng float64) (*model.Authority, error) {
	args := m.Called(ctx, lat, lng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Authority), args.Error(1)
}

func (m *mockStore) CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error) {
	args := m.Called(ctx, kind, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, result any, runErr error) error {
	args := m.Called(ctx, runID, result, runErr)
	return args.Error(0)
}

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Oracle Mock ---

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Generate(ctx context.Context, prompt string, format oracle.Format) (string, error) {
	args := m.Called(ctx, prompt, format)
	return args.String(0), args.Error(1)
}

// classifyPromptArg matches the classification prompt.
func classifyPromptArg() any {
	return mock.MatchedBy(func(p string) bool { return strings.HasPrefix(p, "Analyze this construction") })
}

// matchPromptArg matches the permit matching prompt.
func matchPromptArg() any {
	return mock.MatchedBy(func(p string) bool { return strings.HasPrefix(p, "Determine ALL permits") })
}

// --- Scraper Mock ---

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, permit model.CandidatePermit, authority model.Authority) (*forms.RawForm, error) {
	args := m.Called(ctx, permit, authority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forms.RawForm), args.Error(1)
}

// --- Parser Mock ---

type mockParser struct {
	mock.Mock
}

func (m *mockParser) Parse(ctx context.Context, raw *forms.RawForm) ([]model.FormField, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FormField), args.Error(1)
}
