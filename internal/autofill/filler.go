package autofill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

const fixPrompt = `This value does not satisfy a permit form field.
Value: %s
Field: %s
Field type: %s
Problems: %s
%s
Rewrite the value so it satisfies the field. Return only the rewritten value, nothing else.`

// Filler fills one field from its mapping.
type Filler struct {
	transformer *Transformer
	client      oracle.Client
}

// NewFiller creates a Filler. client is used for the corrective rewrite and
// may be nil, in which case invalid values are simply dropped.
func NewFiller(transformer *Transformer, client oracle.Client) *Filler {
	return &Filler{transformer: transformer, client: client}
}

// Fill resolves, transforms and checks the value for field. Any failure
// yields a nil value with zero confidence; a value that fails its checks is
// never returned.
func (f *Filler) Fill(ctx context.Context, field model.FormField, mappings model.Mappings, user, project model.Record) model.FilledValue {
	log := zap.L().With(zap.String("field", field.FieldName))

	m, ok := mappings[field.FieldName]
	if !ok {
		return model.FilledValue{}
	}
	v, ok := Extract(m.Source, user, project)
	if !ok {
		log.Debug("autofill: source absent", zap.String("source", m.Source))
		return model.FilledValue{}
	}

	if m.Transform != "" {
		tv, err := f.transformer.Transform(ctx, v, m.Transform, field)
		if err != nil {
			log.Warn("autofill: transform failed", zap.String("transform", m.Transform), zap.Error(err))
			return model.FilledValue{}
		}
		v = tv
	}
	if isEmpty(v) {
		return model.FilledValue{}
	}

	if problems := CheckField(v, field); len(problems) > 0 {
		fixed, ok := f.rewrite(ctx, v, field, problems)
		if !ok {
			log.Info("autofill: value rejected", zap.Strings("problems", problems))
			return model.FilledValue{}
		}
		v = fixed
	}
	return model.FilledValue{Value: v, Confidence: m.Confidence}
}

// rewrite makes one oracle attempt at correcting v.
func (f *Filler) rewrite(ctx context.Context, v any, field model.FormField, problems []string) (any, bool) {
	if f.client == nil {
		return nil, false
	}

	var hint string
	if field.DateFormat != "" {
		hint = "Date format: " + field.DateFormat + "\n"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(toString(v))
	}
	prompt := fmt.Sprintf(fixPrompt, raw, field.DisplayName(), field.FieldType, strings.Join(problems, "; "), hint)

	reply, err := f.client.Generate(ctx, prompt, oracle.FormatText)
	if err != nil {
		zap.L().Warn("autofill: corrective rewrite failed", zap.String("field", field.FieldName), zap.Error(err))
		return nil, false
	}
	fixed := strings.TrimSpace(reply)
	if isEmpty(fixed) || checkBareValue(fixed, field) != nil || len(CheckField(fixed, field)) > 0 {
		return nil, false
	}
	return fixed, true
}
