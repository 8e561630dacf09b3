package autofill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

func newFiller(o oracle.Client) *Filler {
	return NewFiller(NewTransformer(o), o)
}

func TestFill_NoMapping(t *testing.T) {
	o := &countingOracle{}
	field := model.FormField{FieldName: "owner_email", Required: true}

	got := newFiller(o).Fill(context.Background(), field, model.Mappings{}, userData(), projectData())
	assert.Equal(t, model.FilledValue{Value: nil, Confidence: 0}, got)
	assert.Zero(t, o.Calls())
}

func TestFill(t *testing.T) {
	mappings := model.Mappings{
		"owner_name":  {Source: "user.name", Transform: "uppercase", Confidence: 0.9},
		"owner_phone": {Source: "user.phone", Transform: "format_phone", Confidence: 0.8},
		"start_date":  {Source: "project.start_date", Transform: "format_date", Confidence: 0.7},
		"deck_height": {Source: "project.details.height", Confidence: 0.6},
		"county":      {Source: "user.property.county", Confidence: 0.9},
	}
	fields := map[string]model.FormField{}
	for _, f := range deckFormFields() {
		fields[f.FieldName] = f
	}
	fields["county"] = model.FormField{FieldName: "county", Label: "County"}

	o := &countingOracle{}
	f := newFiller(o)
	ctx := context.Background()

	assert.Equal(t, model.FilledValue{Value: "JOHN SMITH", Confidence: 0.9},
		f.Fill(ctx, fields["owner_name"], mappings, userData(), projectData()))
	assert.Equal(t, model.FilledValue{Value: "(512) 555-1234", Confidence: 0.8},
		f.Fill(ctx, fields["owner_phone"], mappings, userData(), projectData()))
	assert.Equal(t, model.FilledValue{Value: "11/02/2026", Confidence: 0.7},
		f.Fill(ctx, fields["start_date"], mappings, userData(), projectData()))
	assert.Equal(t, model.FilledValue{Value: 2.0, Confidence: 0.6},
		f.Fill(ctx, fields["deck_height"], mappings, userData(), projectData()))
	assert.Equal(t, model.FilledValue{},
		f.Fill(ctx, fields["county"], mappings, userData(), projectData()))
	assert.Zero(t, o.Calls())
}

func TestFill_CorrectiveRewrite(t *testing.T) {
	field := model.FormField{FieldName: "site_zip", Label: "Site ZIP", FieldType: model.FieldText,
		ValidationRules: []model.ValidationRule{{Rule: "zip"}}}
	mappings := model.Mappings{"site_zip": {Source: "user.property.zip", Confidence: 0.9}}
	user := model.Record{"property": map[string]any{"zip": "Austin TX 78701"}}

	m := new(mockOracle)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, `Value: "Austin TX 78701"`) &&
			assert.Contains(t, p, "must be a valid ZIP code")
	}), oracle.FormatText).Return("78701\n", nil).Once()

	got := newFiller(m).Fill(context.Background(), field, mappings, user, nil)
	assert.Equal(t, model.FilledValue{Value: "78701", Confidence: 0.9}, got)
	m.AssertExpectations(t)
}

func TestFill_RewriteStillInvalid(t *testing.T) {
	field := model.FormField{FieldName: "email", FieldType: model.FieldText,
		ValidationRules: []model.ValidationRule{{Rule: "email"}}}
	mappings := model.Mappings{"email": {Source: "user.email", Confidence: 0.9}}
	user := model.Record{"email": "john at example dot com"}

	o := &countingOracle{text: "john at example.com"}
	got := newFiller(o).Fill(context.Background(), field, mappings, user, nil)
	assert.Equal(t, model.FilledValue{}, got)
	assert.Equal(t, 1, o.Calls(), "exactly one corrective attempt")
}

func TestFill_RewriteUnavailable(t *testing.T) {
	field := model.FormField{FieldName: "n", FieldType: model.FieldNumber}
	mappings := model.Mappings{"n": {Source: "project.description", Confidence: 0.5}}

	o := &countingOracle{err: oracle.Unavailable("stub", errors.New("down"))}
	got := newFiller(o).Fill(context.Background(), field, mappings, nil, projectData())
	assert.Equal(t, model.FilledValue{}, got)

	got = newFiller(nil).Fill(context.Background(), field, mappings, nil, projectData())
	assert.Equal(t, model.FilledValue{}, got)
}

func TestFill_TransformFailure(t *testing.T) {
	field := model.FormField{FieldName: "height", FieldType: model.FieldNumber}
	mappings := model.Mappings{"height": {Source: "project.details.height", Transform: "feet to inches", Confidence: 0.5}}

	o := &countingOracle{text: "```24```"}
	got := newFiller(o).Fill(context.Background(), field, mappings, nil, projectData())
	assert.Equal(t, model.FilledValue{}, got)
	assert.Equal(t, 1, o.Calls())
}

func TestFill_EmptyAfterTransform(t *testing.T) {
	field := model.FormField{FieldName: "name"}
	mappings := model.Mappings{"name": {Source: "user.name", Confidence: 0.5}}
	got := newFiller(nil).Fill(context.Background(), field, mappings, model.Record{"name": "   "}, nil)
	assert.Nil(t, got.Value)
}
