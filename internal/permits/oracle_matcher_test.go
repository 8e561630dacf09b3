package permits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

func TestOracleMatcher_Match(t *testing.T) {
	reply := "Here you go:\n```json\n[\n" +
		`{"permit_type": "building", "permit_name": "Building Permit", "required": true, "reasoning": "attached deck", "triggers": ["deck"]},` + "\n" +
		`{"permit_type": "electrical", "required": false, "exemptions": ["low voltage"]},` + "\n" +
		`{"permit_type": "", "permit_name": "nameless"},` + "\n" +
		`{"permit_type": "zoning"}` + "\n]\n```"

	regs := []model.RegulatorySnippet{{Code: "25-11-31", Title: "Permits", Text: "A permit is\n required."}}

	m := new(mockOracle)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, `"project_category": "residential"`) &&
			assert.Contains(t, p, `"permit_type": "plumbing"`) &&
			assert.Contains(t, p, "[25-11-31] Permits: A permit is required.")
	}), oracle.FormatStructured).Return(reply, nil)

	got, err := NewOracleMatcher(m).Match(context.Background(), deckClassification(), austinRules(), regs)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "building", got[0].PermitType)
	assert.True(t, got[0].Required)
	assert.Equal(t, []string{"deck"}, got[0].Triggers)
	assert.Equal(t, model.ProvenanceOracle, got[0].Provenance)

	assert.False(t, got[1].Required)
	assert.Equal(t, []string{"low voltage"}, got[1].Exemptions)

	assert.Equal(t, "zoning", got[2].PermitType)
	assert.True(t, got[2].Required)
	m.AssertExpectations(t)
}

func TestOracleMatcher_Unavailable(t *testing.T) {
	m := new(mockOracle)
	m.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("", oracle.Unavailable("stub", errors.New("timeout")))

	_, err := NewOracleMatcher(m).Match(context.Background(), deckClassification(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestOracleMatcher_Malformed(t *testing.T) {
	m := new(mockOracle)
	m.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("I could not determine the permits.", nil)

	_, err := NewOracleMatcher(m).Match(context.Background(), deckClassification(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrMalformed)
}

func TestOracleMatcher_WrongShape(t *testing.T) {
	m := new(mockOracle)
	m.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(`[{"permit_type": 7}]`, nil)

	_, err := NewOracleMatcher(m).Match(context.Background(), deckClassification(), nil, nil)
	assert.ErrorIs(t, err, oracle.ErrMalformed)
}

func TestFormatRegulations(t *testing.T) {
	assert.Equal(t, "(none retrieved)", FormatRegulations(nil))
	got := FormatRegulations([]model.RegulatorySnippet{
		{Code: "R105.1", Title: "Required", Text: "Any owner  shall obtain a permit."},
		{Code: "R105.2", Title: "Exempt", Text: "Decks under 200 sqft."},
	})
	assert.Equal(t, "[R105.1] Required: Any owner shall obtain a permit.\n[R105.2] Exempt: Decks under 200 sqft.", got)
}
