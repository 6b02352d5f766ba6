package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Generate(ctx context.Context, parts []port.ModelPart) (string, error) {
	args := m.Called(ctx, parts)
	return args.String(0), args.Error(1)
}

func (m *MockModel) Name() string {
	return "fake-model"
}

type stubRenderer struct {
	pages []port.PageContent
	err   error
}

func (s *stubRenderer) Pages([]byte) ([]port.PageContent, error) {
	return s.pages, s.err
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(data []byte) (string, []byte, error) {
	if string(data) == "corrupt" {
		return "", nil, errors.New("unknown format")
	}
	return "image/jpeg", data, nil
}

func newAdapter(model port.ExtractionModel, renderer port.DocumentRenderer, opts Options) *Adapter {
	return NewAdapter(model, renderer, stubNormalizer{}, opts, zap.NewNop())
}

func TestRecoverJSON(t *testing.T) {
	fields, err := RecoverJSON("Here you go:\n```json\n{\"emisor\":\"Acme\"}\n```\nThanks!")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"emisor": "Acme"}, fields)

	fields, err = RecoverJSON(`{"a": {"b": 1}} trailing`)
	require.NoError(t, err)
	assert.Contains(t, fields, "a")
}

func TestRecoverJSON_Failures(t *testing.T) {
	for _, text := range []string{
		"no json here",
		"} backwards {",
		"{not: valid}",
		"",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := RecoverJSON(text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, entity.ErrMalformedExtraction))

			var malformed *entity.MalformedExtractionError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, text, malformed.Raw)
		})
	}
}

func TestAdapter_ExtractImage(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(parts []port.ModelPart) bool {
		return len(parts) == 2 && parts[0].Text == singleImagePrompt &&
			parts[1].IsImage() && parts[1].MIMEType == "image/jpeg"
	})).Return("```json\n{\"emisor\": \"Acme\", \"total\": 12}\n```", nil)

	res, err := newAdapter(model, &stubRenderer{}, Options{}).Extract(context.Background(), entity.DocumentImage, []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Fields["emisor"])
	assert.Equal(t, "fake-model (image)", res.Method)
	model.AssertExpectations(t)
}

func TestAdapter_ExtractImage_Undecodable(t *testing.T) {
	model := new(MockModel)

	_, err := newAdapter(model, &stubRenderer{}, Options{}).ExtractImage(context.Background(), []byte("corrupt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrEmptyDocument))
	model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAdapter_ExtractPDF_SingleCall(t *testing.T) {
	renderer := &stubRenderer{pages: []port.PageContent{
		{Number: 1, Text: "ACME SL  Factura 1"},
		{Number: 2, Text: "  ", MIMEType: "image/png", Image: []byte("png")},
		{Number: 3, Text: "TOTAL 99,00"},
	}}

	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(parts []port.ModelPart) bool {
		// prompt + (header, text) + (header, image) + (header, text)
		return len(parts) == 7 && parts[0].Text == multiPagePrompt && parts[4].IsImage()
	})).Return(`{"emisor": "ACME SL", "total": 99}`, nil).Once()

	res, err := newAdapter(model, renderer, Options{}).Extract(context.Background(), entity.DocumentPDF, []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "fake-model (pdf)", res.Method)
	assert.Equal(t, 99.0, res.Fields["total"])
	model.AssertNumberOfCalls(t, "Generate", 1)
}

func TestAdapter_ExtractPDF_PerPageMerges(t *testing.T) {
	renderer := &stubRenderer{pages: []port.PageContent{
		{Number: 1, Text: "page one"},
		{Number: 2, Text: "page two"},
	}}

	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(parts []port.ModelPart) bool {
		return parts[2].Text == "page one"
	})).Return(`{"emisor": "Acme", "total": 10, "conceptos": [{"descripcion": "a"}]}`, nil)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(parts []port.ModelPart) bool {
		return parts[2].Text == "page two"
	})).Return(`{"emisor": "Other", "total": 55, "conceptos": [{"descripcion": "b"}]}`, nil)

	res, err := newAdapter(model, renderer, Options{PerPage: true}).ExtractPDF(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Fields["emisor"])
	assert.Equal(t, 55.0, res.Fields["total"])
	assert.Len(t, res.Fields["conceptos"], 2)
	model.AssertNumberOfCalls(t, "Generate", 2)
}

func TestAdapter_ExtractPDF_Empty(t *testing.T) {
	model := new(MockModel)
	renderer := &stubRenderer{pages: []port.PageContent{{Number: 1, Text: "   "}}}

	_, err := newAdapter(model, renderer, Options{}).ExtractPDF(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrEmptyDocument))

	renderer.pages = nil
	_, err = newAdapter(model, renderer, Options{}).ExtractPDF(context.Background(), []byte("%PDF"))
	assert.True(t, errors.Is(err, entity.ErrEmptyDocument))

	model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAdapter_ModelFailure(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("429 rate limited"))

	_, err := newAdapter(model, &stubRenderer{}, Options{}).ExtractImage(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAdapter_MalformedResponse(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return("I could not read this invoice.", nil)

	_, err := newAdapter(model, &stubRenderer{}, Options{}).ExtractImage(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrMalformedExtraction))
	assert.Contains(t, err.Error(), "I could not read this invoice.")
}
