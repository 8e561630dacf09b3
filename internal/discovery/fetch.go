package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/permit-cli/internal/forms"
	"github.com/sells-group/permit-cli/internal/model"
)

// PermitForm is the form entry for one permit. Error is set when the form
// could not be fetched or parsed; the other permits are unaffected.
type PermitForm struct {
	PermitType string            `json:"permit_type"`
	FormURL    string            `json:"form_url,omitempty"`
	Kind       model.FormKind    `json:"kind,omitempty"`
	Fields     []model.FormField `json:"form_structure"`
	PDFURL     string            `json:"fillable_pdf,omitempty"`
	PortalURL  string            `json:"online_portal,omitempty"`
	Cached     bool              `json:"cached"`
	Error      string            `json:"error,omitempty"`
}

// FetchForms fetches the form of every required permit concurrently. The
// result is index-aligned with the required permits of in.
func (e *Engine) FetchForms(ctx context.Context, in []model.RequiredPermit, authority model.Authority) []PermitForm {
	var required []model.RequiredPermit
	for _, p := range in {
		if p.Required {
			required = append(required, p)
		}
	}
	out := make([]PermitForm, len(required))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchConcurrency)
	for i, p := range required {
		g.Go(func() error {
			out[i] = e.fetchForm(gCtx, p.CandidatePermit, authority)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) fetchForm(ctx context.Context, p model.CandidatePermit, authority model.Authority) PermitForm {
	log := zap.L().With(
		zap.String("jurisdiction_id", authority.ID),
		zap.String("permit_type", p.PermitType),
	)
	entry := PermitForm{PermitType: p.PermitType, Fields: []model.FormField{}}

	tmpl, err := e.store.GetFormTemplate(ctx, authority.ID, p.PermitType, e.opts.FormMaxAge)
	if err != nil {
		log.Warn("discovery: form cache lookup failed", zap.Error(err))
	}
	if tmpl != nil {
		entry.fromTemplate(tmpl)
		entry.Cached = true
		return entry
	}

	if e.scraper == nil || e.parser == nil {
		entry.Error = "form scraping not configured"
		return entry
	}

	raw, err := e.scraper.Scrape(ctx, p, authority)
	if err != nil {
		log.Warn("discovery: form scrape failed", zap.Error(err))
		entry.Error = err.Error()
		return entry
	}
	entry.FormURL = raw.URL
	entry.PDFURL = raw.PDFURL
	entry.PortalURL = raw.PortalURL

	fields, err := e.parser.Parse(ctx, raw)
	if err != nil {
		log.Warn("discovery: form parse failed", zap.String("url", raw.URL), zap.Error(err))
		entry.Kind = raw.Kind
		entry.Error = err.Error()
		return entry
	}

	tmpl = &model.FormTemplate{
		ID:             uuid.NewString(),
		JurisdictionID: authority.ID,
		PermitType:     p.PermitType,
		URL:            raw.URL,
		Kind:           raw.Kind,
		Content:        raw.Content,
		PDFURL:         raw.PDFURL,
		PortalURL:      raw.PortalURL,
		Fields:         fields,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := e.store.PutFormTemplate(ctx, tmpl); err != nil {
		log.Warn("discovery: form cache write failed", zap.Error(err))
	}
	entry.fromTemplate(tmpl)

	log.Info("discovery: form fetched",
		zap.String("url", raw.URL),
		zap.String("kind", string(raw.Kind)),
		zap.Int("fields", len(fields)),
	)
	return entry
}

func (f *PermitForm) fromTemplate(t *model.FormTemplate) {
	f.FormURL = t.URL
	f.Kind = t.Kind
	f.PDFURL = t.PDFURL
	f.PortalURL = t.PortalURL
	if t.Fields != nil {
		f.Fields = t.Fields
	}
}

// FormParser turns a scraped form into its field structure.
type FormParser interface {
	Parse(ctx context.Context, raw *forms.RawForm) ([]model.FormField, error)
}
