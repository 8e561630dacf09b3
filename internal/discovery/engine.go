// Package discovery answers "which permits does this project need": it
// resolves the address to a permit authority, classifies the project,
// reconciles rule-based and oracle-based permit matches, fetches each
// permit's form and lays out the application workflow.
package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/config"
	"github.com/sells-group/permit-cli/internal/forms"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
	"github.com/sells-group/permit-cli/internal/permits"
	"github.com/sells-group/permit-cli/internal/rules"
	"github.com/sells-group/permit-cli/pkg/geocode"
)

var (
	// ErrAddressValidation means the address could not be geocoded.
	ErrAddressValidation = eris.New("discovery: cannot validate address")
	// ErrJurisdictionNotFound means no permit authority serves the location.
	ErrJurisdictionNotFound = eris.New("discovery: no permit authority for location")
)

// Degradation flags reported in Result.Degradations.
const (
	FlagClassificationDegraded = "classification_degraded"
	FlagOracleDegraded         = "oracle_degraded"
	FlagNoRules                = "no_rules"
	FlagRegulationsUnavailable = "regulations_unavailable"
	FlagNeedsReview            = "needs_review"
	FlagEnrichmentGaps         = "enrichment_gaps"
	FlagFormsIncomplete        = "forms_incomplete"
)

const regulationLimit = 10

// Store is the persistence discovery needs. store.Store satisfies it.
type Store interface {
	ListRules(ctx context.Context, jurisdictionID string) ([]model.Rule, error)
	SearchRegulations(ctx context.Context, jurisdictionID, query string, limit int) ([]model.RegulatorySnippet, error)
	GetFormTemplate(ctx context.Context, jurisdictionID, permitType string, maxAge time.Duration) (*model.FormTemplate, error)
	PutFormTemplate(ctx context.Context, tmpl *model.FormTemplate) error
	FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error)
	LocateJurisdiction(ctx context.Context, lat, lng float64) (*model.Authority, error)
	CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result any, runErr error) error
}

// Deps are the collaborators of an Engine. Store and Geocoder are
// required. A nil Oracle degrades classification and matching, a nil
// Scraper or Parser leaves every form entry with an error, and a nil Rules
// disables the on-disk rule tables.
type Deps struct {
	Store    Store
	Geocoder geocode.Client
	Oracle   oracle.Client
	Scraper  forms.Scraper
	Parser   FormParser
	Rules    func() *rules.Snapshot
	Metrics  *metrics.Metrics
}

// Options tunes an Engine.
type Options struct {
	FormMaxAge       time.Duration
	FetchConcurrency int
}

// OptionsFromConfig reads Options from the forms config section.
func OptionsFromConfig(cfg config.FormsConfig) Options {
	return Options{
		FormMaxAge:       time.Duration(cfg.CacheMaxAgeDays) * 24 * time.Hour,
		FetchConcurrency: cfg.FetchConcurrency,
	}
}

// Result is the outcome of one discovery.
type Result struct {
	RunID             string                      `json:"run_id,omitempty"`
	Jurisdiction      model.Jurisdiction          `json:"jurisdiction"`
	Classification    model.ProjectClassification `json:"classification"`
	Permits           []model.RequiredPermit      `json:"permits"`
	Forms             []PermitForm                `json:"forms"`
	Workflow          []WorkflowStep              `json:"workflow"`
	Inspections       []string                    `json:"inspections"`
	EstimatedTimeline string                      `json:"estimated_timeline"`
	EstimatedCost     Cost                        `json:"estimated_cost"`
	RelatedCodes      []model.RegulatorySnippet   `json:"related_codes"`
	ReviewFlags       []string                    `json:"review_flags,omitempty"`
	OracleError       string                      `json:"oracle_error,omitempty"`
	Degradations      []string                    `json:"degradations"`
}

func (r *Result) flag(f string) {
	for _, x := range r.Degradations {
		if x == f {
			return
		}
	}
	r.Degradations = append(r.Degradations, f)
}

// Engine runs permit discovery.
type Engine struct {
	store      Store
	geocoder   geocode.Client
	classifier *Classifier
	reconciler func(jurisdictionID string, fees []model.FeeSchedule) *permits.Reconciler
	scraper    forms.Scraper
	parser     FormParser
	rules      func() *rules.Snapshot
	metrics    *metrics.Metrics
	opts       Options
}

// New creates an Engine.
func New(d Deps, opts Options) *Engine {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.FormMaxAge <= 0 {
		opts.FormMaxAge = 30 * 24 * time.Hour
	}

	var matcher permits.Matcher
	if d.Oracle != nil {
		matcher = permits.NewOracleMatcher(d.Oracle)
	}
	st := d.Store
	return &Engine{
		store:      st,
		geocoder:   d.Geocoder,
		classifier: NewClassifier(d.Oracle),
		reconciler: func(jurisdictionID string, fees []model.FeeSchedule) *permits.Reconciler {
			lookup := permits.NewScheduleLookup(jurisdictionID, st, permits.StaticSchedules(fees))
			return permits.NewReconciler(matcher, lookup.Enricher())
		},
		scraper: d.Scraper,
		parser:  d.Parser,
		rules:   d.Rules,
		metrics: d.Metrics,
		opts:    opts,
	}
}

// Discover runs the full discovery for a project and records it in the run
// log. The error is non-nil only when the address cannot be geocoded
// (ErrAddressValidation) or no authority serves it
// (ErrJurisdictionNotFound); every other failure is reported through
// Result.Degradations.
func (e *Engine) Discover(ctx context.Context, in model.ProjectInput) (*Result, error) {
	log := zap.L().With(zap.String("address", in.Address))

	var runID string
	run, err := e.store.CreateRun(ctx, model.RunKindDiscover, in)
	if err != nil {
		log.Warn("discovery: failed to create run", zap.Error(err))
	} else {
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	start := time.Now()
	res, err := e.discover(ctx, in, log)

	if runID != "" {
		var result any
		if res != nil {
			res.RunID = runID
			result = res
		}
		if cerr := e.store.CompleteRun(context.WithoutCancel(ctx), runID, result, err); cerr != nil {
			log.Warn("discovery: failed to complete run", zap.Error(cerr))
		}
	}

	if err != nil {
		e.metrics.ObserveDiscovery("failed", nil)
		log.Error("discovery: failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}

	outcome := "complete"
	if len(res.Degradations) > 0 {
		outcome = "degraded"
	}
	e.metrics.ObserveDiscovery(outcome, res.Degradations)
	log.Info("discovery: complete",
		zap.String("jurisdiction_id", res.Jurisdiction.Authority.ID),
		zap.Int("permits", len(res.Permits)),
		zap.Strings("degradations", res.Degradations),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (e *Engine) discover(ctx context.Context, in model.ProjectInput, log *zap.Logger) (*Result, error) {
	res := &Result{Degradations: []string{}}

	phase := func(name string, fn func()) {
		t := time.Now()
		fn()
		log.Debug("discovery: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", time.Since(t).Milliseconds()),
		)
	}

	// 1. Jurisdiction. The only phase that can fail the run.
	t := time.Now()
	j, err := e.ResolveJurisdiction(ctx, in.Address)
	if err != nil {
		log.Error("discovery: phase failed",
			zap.String("phase", "jurisdiction"),
			zap.Int64("duration_ms", time.Since(t).Milliseconds()),
			zap.Error(err),
		)
		return nil, err
	}
	res.Jurisdiction = *j
	log.Debug("discovery: phase complete",
		zap.String("phase", "jurisdiction"),
		zap.Int64("duration_ms", time.Since(t).Milliseconds()),
	)
	jid := res.Jurisdiction.Authority.ID

	// 2. Classification.
	phase("classify", func() {
		cls, degraded := e.classifier.Classify(ctx, in)
		res.Classification = cls
		if degraded {
			res.flag(FlagClassificationDegraded)
		}
	})

	// 3. Rules and regulatory context.
	var (
		ruleTable []model.Rule
		fees      []model.FeeSchedule
	)
	phase("rules", func() {
		ruleTable = e.jurisdictionRules(ctx, jid)
		if len(ruleTable) == 0 {
			res.flag(FlagNoRules)
		}
		regs, ok := e.regulations(ctx, res.Jurisdiction)
		if !ok {
			res.flag(FlagRegulationsUnavailable)
		}
		res.RelatedCodes = regs
		fees = e.snapshot().Fees(jid)
	})

	// 4. Match and reconcile.
	phase("match", func() {
		rr := e.reconciler(jid, fees).Run(ctx, res.Classification, ruleTable, res.RelatedCodes)
		res.Permits = rr.Permits
		res.ReviewFlags = rr.ReviewFlags
		res.OracleError = rr.OracleError
		if rr.OracleDegraded {
			res.flag(FlagOracleDegraded)
		}
		if len(rr.ReviewFlags) > 0 {
			res.flag(FlagNeedsReview)
		}
		for _, p := range rr.Permits {
			if p.Required && len(p.EnrichmentGaps) > 0 {
				res.flag(FlagEnrichmentGaps)
				break
			}
		}
	})

	// 5. Forms.
	phase("forms", func() {
		res.Forms = e.FetchForms(ctx, res.Permits, res.Jurisdiction.Authority)
		for _, f := range res.Forms {
			if f.Error != "" {
				res.flag(FlagFormsIncomplete)
				break
			}
		}
	})

	// 6. Workflow and totals.
	res.Workflow = BuildWorkflow(res.Permits, ruleTable)
	res.Inspections = Inspections(res.Workflow)
	res.EstimatedTimeline = Timeline(res.Permits)
	res.EstimatedCost = Costs(res.Permits)

	if res.Permits == nil {
		res.Permits = []model.RequiredPermit{}
	}
	if res.RelatedCodes == nil {
		res.RelatedCodes = []model.RegulatorySnippet{}
	}
	return res, nil
}

// ResolveJurisdiction geocodes the address and finds the authority whose
// service area contains it.
func (e *Engine) ResolveJurisdiction(ctx context.Context, address string) (*model.Jurisdiction, error) {
	if strings.TrimSpace(address) == "" {
		return nil, eris.Wrap(ErrAddressValidation, "discovery: empty address")
	}
	g, err := e.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, eris.Wrapf(ErrAddressValidation, "discovery: geocode %q: %v", address, err)
	}
	if g == nil || !g.Success {
		return nil, eris.Wrapf(ErrAddressValidation, "discovery: no match for %q", address)
	}

	auth, err := e.store.LocateJurisdiction(ctx, g.Latitude, g.Longitude)
	if err != nil {
		return nil, eris.Wrapf(ErrJurisdictionNotFound, "discovery: locate (%f, %f): %v", g.Latitude, g.Longitude, err)
	}
	if auth == nil {
		return nil, eris.Wrapf(ErrJurisdictionNotFound, "discovery: no authority at (%f, %f)", g.Latitude, g.Longitude)
	}

	return &model.Jurisdiction{
		Address:    g.FormattedAddress,
		Latitude:   g.Latitude,
		Longitude:  g.Longitude,
		City:       g.City,
		County:     g.County,
		State:      g.State,
		PostalCode: g.PostalCode,
		Authority:  *auth,
	}, nil
}

func (e *Engine) snapshot() *rules.Snapshot {
	if e.rules == nil {
		return nil
	}
	return e.rules()
}

// jurisdictionRules reads the active rules from the store, falling back to
// the on-disk tables when the store has none.
func (e *Engine) jurisdictionRules(ctx context.Context, jid string) []model.Rule {
	stored, err := e.store.ListRules(ctx, jid)
	if err != nil {
		zap.L().Warn("discovery: rule lookup failed, using rule tables",
			zap.String("jurisdiction_id", jid),
			zap.Error(err),
		)
	}
	src := stored
	if len(src) == 0 {
		src = e.snapshot().Rules(jid)
	}
	active := make([]model.Rule, 0, len(src))
	for _, r := range src {
		if !r.Disabled {
			active = append(active, r)
		}
	}
	return active
}

// regulations searches the store for regulatory text, falling back to the
// snippets in the rule tables. ok is false when the store search failed.
func (e *Engine) regulations(ctx context.Context, j model.Jurisdiction) ([]model.RegulatorySnippet, bool) {
	query := strings.TrimSpace(j.City + " building code permit requirements")
	regs, err := e.store.SearchRegulations(ctx, j.Authority.ID, query, regulationLimit)
	ok := err == nil
	if err != nil {
		zap.L().Warn("discovery: regulation search failed",
			zap.String("jurisdiction_id", j.Authority.ID),
			zap.Error(err),
		)
	}
	if len(regs) == 0 {
		regs = e.snapshot().Regulations(j.Authority.ID)
		if len(regs) > regulationLimit {
			regs = regs[:regulationLimit]
		}
	}
	return regs, ok
}
