package forms

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

// --- OCR Mock ---

type mockOCR struct {
	mock.Mock
}

func (m *mockOCR) ExtractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	args := m.Called(ctx, content, mimeType)
	return args.String(0), args.Error(1)
}

// --- Extractor / Enhancer Mocks ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractFields(ctx context.Context, raw *RawForm) ([]RawField, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RawField), args.Error(1)
}

type mockEnhancer struct {
	mock.Mock
}

func (m *mockEnhancer) Enhance(ctx context.Context, raw []RawField) ([]model.FormField, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FormField), args.Error(1)
}
