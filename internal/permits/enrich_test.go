package permits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/model"
)

func schedules() StaticSchedules {
	return StaticSchedules{
		{JurisdictionID: "austin-tx", PermitType: "building", FormID: "BP-100",
			BaseFee: 150, PerSqFt: 0.5, PercentOfValue: 0.25, MinProcessingDays: 10, MaxProcessingDays: 15},
		{JurisdictionID: "austin-tx", PermitType: "electrical", BaseFee: 75, MinProcessingDays: 3},
	}
}

func TestEstimateFee(t *testing.T) {
	c := deckClassification()
	fee, err := EstimateFee(schedules()[0], c)
	require.NoError(t, err)
	// 150 + 0.5*192 + 0.25% of 8640
	assert.InDelta(t, 267.6, fee, 0.001)

	c.SquareFootage = nil
	_, err = EstimateFee(schedules()[0], c)
	assert.Error(t, err)

	fee, err = EstimateFee(schedules()[1], c)
	require.NoError(t, err)
	assert.Equal(t, 75.0, fee)
}

func TestEnricher_Enrich(t *testing.T) {
	l := NewScheduleLookup("austin-tx", schedules())
	permits := []model.CandidatePermit{
		{PermitType: "Building"},
		{PermitType: "electrical"},
		{PermitType: "zoning"},
	}

	got := l.Enricher().Enrich(context.Background(), permits, deckClassification())
	require.Len(t, got, 3)

	require.NotNil(t, got[0].FormID)
	assert.Equal(t, "BP-100", *got[0].FormID)
	require.NotNil(t, got[0].EstimatedFee)
	assert.InDelta(t, 267.6, *got[0].EstimatedFee, 0.001)
	require.NotNil(t, got[0].ProcessingTime)
	assert.Equal(t, model.ProcessingTime{MinDays: 10, MaxDays: 15}, *got[0].ProcessingTime)
	assert.Empty(t, got[0].EnrichmentGaps)

	assert.Nil(t, got[1].FormID)
	require.NotNil(t, got[1].EstimatedFee)
	assert.Equal(t, model.ProcessingTime{MinDays: 3, MaxDays: 3}, *got[1].ProcessingTime)
	assert.Equal(t, []string{model.EnrichFormID}, got[1].EnrichmentGaps)

	assert.Nil(t, got[2].FormID)
	assert.Nil(t, got[2].EstimatedFee)
	assert.Nil(t, got[2].ProcessingTime)
	assert.Equal(t, []string{model.EnrichFormID, model.EnrichEstimatedFee, model.EnrichProcessingTime}, got[2].EnrichmentGaps)
	assert.Equal(t, "zoning", got[2].PermitType)
}

func TestEnricher_NilLookups(t *testing.T) {
	got := Enricher{}.Enrich(context.Background(), []model.CandidatePermit{{PermitType: "x"}}, deckClassification())
	require.Len(t, got, 1)
	assert.Len(t, got[0].EnrichmentGaps, 3)
}

func TestScheduleLookup_SourceOrder(t *testing.T) {
	failing := new(mockSchedules)
	failing.On("FeeSchedule", mock.Anything, "austin-tx", "building").Return(nil, errors.New("db down"))
	failing.On("FeeSchedule", mock.Anything, "austin-tx", "fire").Return(nil, errors.New("db down"))

	l := NewScheduleLookup("austin-tx", failing, nil, schedules())

	id, err := l.FormID(context.Background(), model.CandidatePermit{PermitType: "building"}, deckClassification())
	require.NoError(t, err)
	assert.Equal(t, "BP-100", id)

	_, err = l.Fee(context.Background(), model.CandidatePermit{PermitType: "fire"}, deckClassification())
	assert.ErrorContains(t, err, "db down")
	failing.AssertExpectations(t)
}

func TestScheduleLookup_NoSchedule(t *testing.T) {
	l := NewScheduleLookup("austin-tx", schedules())
	_, err := l.ProcessingTime(context.Background(), model.CandidatePermit{PermitType: "demolition"}, deckClassification())
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestStaticSchedules_OtherJurisdiction(t *testing.T) {
	fs, err := schedules().FeeSchedule(context.Background(), "travis-county-tx", "building")
	require.NoError(t, err)
	assert.Nil(t, fs)
}
