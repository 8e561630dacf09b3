package permits

import (
	"context"

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

// --- Matcher Mock ---

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) Match(ctx context.Context, c model.ProjectClassification, rules []model.Rule, regs []model.RegulatorySnippet) ([]model.CandidatePermit, error) {
	args := m.Called(ctx, c, rules, regs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CandidatePermit), args.Error(1)
}

// --- Schedule Source Mock ---

type mockSchedules struct {
	mock.Mock
}

func (m *mockSchedules) FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error) {
	args := m.Called(ctx, jurisdictionID, permitType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeSchedule), args.Error(1)
}

func deckClassification() model.ProjectClassification {
	sqft := 192.0
	return model.ProjectClassification{
		Category:                  model.CategoryResidential,
		WorkTypes:                 []model.WorkType{model.WorkStructural, model.WorkElectrical},
		Scope:                     model.ScopeAddition,
		SquareFootage:             &sqft,
		InvolvesStructuralChanges: true,
		KeyFeatures:               []string{"deck"},
		RiskLevel:                 model.RiskLow,
		EstimatedValue:            8640,
	}
}

func austinRules() []model.Rule {
	return []model.Rule{
		{JurisdictionID: "austin-tx", PermitType: "building", PermitName: "Residential Building Permit",
			Condition: `scope == "addition"`, Description: "Attached decks are additions.",
			Triggers: []string{"attached deck"}},
		{JurisdictionID: "austin-tx", PermitType: "electrical", PermitName: "Electrical Permit",
			Condition: `has(work_types, "electrical")`, Description: "Deck lighting circuits."},
		{JurisdictionID: "austin-tx", PermitType: "plumbing", PermitName: "Plumbing Permit",
			Condition: `has(work_types, "plumbing")`},
	}
}
