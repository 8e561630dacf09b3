package permits

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
)

// ErrNoSchedule is returned by schedule lookups when the jurisdiction has no
// fee schedule for a permit type.
var ErrNoSchedule = eris.New("permits: no fee schedule")

// FormLookup resolves the form identifier for a permit.
type FormLookup interface {
	FormID(ctx context.Context, p model.CandidatePermit, c model.ProjectClassification) (string, error)
}

// FeeLookup estimates the fee for a permit.
type FeeLookup interface {
	Fee(ctx context.Context, p model.CandidatePermit, c model.ProjectClassification) (float64, error)
}

// TimeLookup estimates processing time for a permit.
type TimeLookup interface {
	ProcessingTime(ctx context.Context, p model.CandidatePermit, c model.ProjectClassification) (model.ProcessingTime, error)
}

// Enricher attaches lookup-derived attributes to reconciled permits. A nil
// lookup behaves like one that always fails.
type Enricher struct {
	Forms FormLookup
	Fees  FeeLookup
	Times TimeLookup
}

// Enrich builds one RequiredPermit per candidate. A failed lookup leaves that
// attribute nil and names it in EnrichmentGaps; it never affects other
// attributes or permits.
func (e Enricher) Enrich(ctx context.Context, permits []model.CandidatePermit, c model.ProjectClassification) []model.RequiredPermit {
	out := make([]model.RequiredPermit, 0, len(permits))
	for _, p := range permits {
		rp := model.RequiredPermit{CandidatePermit: p}

		if e.Forms != nil {
			if id, err := e.Forms.FormID(ctx, p, c); err == nil && id != "" {
				rp.FormID = &id
			} else {
				logGap(p, model.EnrichFormID, err)
			}
		}
		if rp.FormID == nil {
			rp.EnrichmentGaps = append(rp.EnrichmentGaps, model.EnrichFormID)
		}

		if e.Fees != nil {
			if fee, err := e.Fees.Fee(ctx, p, c); err == nil {
				rp.EstimatedFee = &fee
			} else {
				logGap(p, model.EnrichEstimatedFee, err)
			}
		}
		if rp.EstimatedFee == nil {
			rp.EnrichmentGaps = append(rp.EnrichmentGaps, model.EnrichEstimatedFee)
		}

		if e.Times != nil {
			if pt, err := e.Times.ProcessingTime(ctx, p, c); err == nil {
				rp.ProcessingTime = &pt
			} else {
				logGap(p, model.EnrichProcessingTime, err)
			}
		}
		if rp.ProcessingTime == nil {
			rp.EnrichmentGaps = append(rp.EnrichmentGaps, model.EnrichProcessingTime)
		}

		out = append(out, rp)
	}
	return out
}

func logGap(p model.CandidatePermit, attr string, err error) {
	zap.L().Debug("permits: enrichment gap",
		zap.String("permit_type", p.PermitType),
		zap.String("attribute", attr),
		zap.Error(err),
	)
}

// ScheduleSource returns a jurisdiction's fee schedule for a permit type, or
// nil when there is none.
type ScheduleSource interface {
	FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error)
}

// StaticSchedules serves fee schedules from memory, such as those loaded
// with a rule table.
type StaticSchedules []model.FeeSchedule

// FeeSchedule implements ScheduleSource.
func (s StaticSchedules) FeeSchedule(_ context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error) {
	k := Key(permitType)
	for i := range s {
		if s[i].JurisdictionID == jurisdictionID && Key(s[i].PermitType) == k {
			fs := s[i]
			return &fs, nil
		}
	}
	return nil, nil
}

// ScheduleLookup implements FormLookup, FeeLookup and TimeLookup over fee
// schedules for one jurisdiction. Sources are tried in order and the first
// schedule found wins.
type ScheduleLookup struct {
	jurisdictionID string
	sources        []ScheduleSource
}

// NewScheduleLookup creates a ScheduleLookup.
func NewScheduleLookup(jurisdictionID string, sources ...ScheduleSource) *ScheduleLookup {
	return &ScheduleLookup{jurisdictionID: jurisdictionID, sources: sources}
}

// Enricher returns an Enricher backed by l for all three attributes.
func (l *ScheduleLookup) Enricher() Enricher {
	return Enricher{Forms: l, Fees: l, Times: l}
}

func (l *ScheduleLookup) schedule(ctx context.Context, permitType string) (*model.FeeSchedule, error) {
	var lastErr error
	for _, src := range l.sources {
		if src == nil {
			continue
		}
		fs, err := src.FeeSchedule(ctx, l.jurisdictionID, permitType)
		if err != nil {
			lastErr = err
			continue
		}
		if fs != nil {
			return fs, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "permits: fee schedule for %s", permitType)
	}
	return nil, eris.Wrapf(ErrNoSchedule, "permits: %s/%s", l.jurisdictionID, permitType)
}

// FormID implements FormLookup.
func (l *ScheduleLookup) FormID(ctx context.Context, p model.CandidatePermit, _ model.ProjectClassification) (string, error) {
	fs, err := l.schedule(ctx, p.PermitType)
	if err != nil {
		return "", err
	}
	if fs.FormID == "" {
		return "", eris.Errorf("permits: schedule for %s has no form id", p.PermitType)
	}
	return fs.FormID, nil
}

// Fee implements FeeLookup. The estimate is the base fee plus the per-sqft
// fee times square footage plus percent_of_value percent of the estimated
// value, rounded to cents. The per-sqft part needs a square footage.
func (l *ScheduleLookup) Fee(ctx context.Context, p model.CandidatePermit, c model.ProjectClassification) (float64, error) {
	fs, err := l.schedule(ctx, p.PermitType)
	if err != nil {
		return 0, err
	}
	return EstimateFee(*fs, c)
}

// EstimateFee applies a fee schedule to a classification.
func EstimateFee(fs model.FeeSchedule, c model.ProjectClassification) (float64, error) {
	fee := fs.BaseFee
	if fs.PerSqFt > 0 {
		if c.SquareFootage == nil {
			return 0, eris.Errorf("permits: %s fee needs square footage", fs.PermitType)
		}
		fee += fs.PerSqFt * *c.SquareFootage
	}
	if fs.PercentOfValue > 0 {
		fee += fs.PercentOfValue / 100 * c.EstimatedValue
	}
	return math.Round(fee*100) / 100, nil
}

// ProcessingTime implements TimeLookup.
func (l *ScheduleLookup) ProcessingTime(ctx context.Context, p model.CandidatePermit, _ model.ProjectClassification) (model.ProcessingTime, error) {
	fs, err := l.schedule(ctx, p.PermitType)
	if err != nil {
		return model.ProcessingTime{}, err
	}
	if fs.MaxDays() == 0 {
		return model.ProcessingTime{}, eris.Errorf("permits: schedule for %s has no processing time", p.PermitType)
	}
	return model.ProcessingTime{MinDays: fs.MinProcessingDays, MaxDays: fs.MaxDays()}, nil
}
