package services

import (
	"strings"

	"github.com/letterflow/letterflow/pkg/personalization"
)

// Preview renders personalization templates against sample or caller-chosen
// values, without touching any subscriber data.
type Preview struct{}

// NewPreview creates a new preview service.
func NewPreview() *Preview {
	return &Preview{}
}

// PreviewRequest is a template plus optional value overrides keyed by token.
type PreviewRequest struct {
	Template string
	Values   map[string]string
}

// PreviewResponse carries the rendered output plus the template diagnostics.
type PreviewResponse struct {
	Rendered      string   `json:"rendered"`
	Variables     []string `json:"variables"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
}

// Render substitutes the catalog's sample values into the template. Explicit
// values win over samples; tokens outside the catalog are reported and left
// verbatim.
func (p *Preview) Render(req PreviewRequest) (*PreviewResponse, error) {
	if strings.TrimSpace(req.Template) == "" {
		return nil, NewValidationError("Render", "TEMPLATE_REQUIRED", "template content is required", ErrTemplateRequired)
	}

	values := personalization.SampleValues()
	for token, value := range req.Values {
		values[token] = value
	}

	validation := personalization.Validate(req.Template, values)

	return &PreviewResponse{
		Rendered:      personalization.Render(req.Template, values),
		Variables:     personalization.ExtractVariables(req.Template),
		InvalidTokens: validation.InvalidTokens,
	}, nil
}

// EmailPreviewRequest is an email subject and body plus optional value
// overrides keyed by token.
type EmailPreviewRequest struct {
	Subject string
	Content string
	Values  map[string]string
}

// EmailPreviewResponse carries the rendered email plus template diagnostics
// spanning both fields.
type EmailPreviewResponse struct {
	Subject       string   `json:"subject"`
	Content       string   `json:"content"`
	Variables     []string `json:"variables"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
}

// RenderEmail renders a subject and body pair the way a send would, using
// sample values where the caller supplies none. It never sends anything.
func (p *Preview) RenderEmail(req EmailPreviewRequest) (*EmailPreviewResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewValidationError("RenderEmail", "TEMPLATE_REQUIRED", "email content is required", ErrTemplateRequired)
	}

	values := personalization.SampleValues()
	for token, value := range req.Values {
		values[token] = value
	}

	combined := req.Subject + "\n" + req.Content
	validation := personalization.Validate(combined, values)

	return &EmailPreviewResponse{
		Subject:       personalization.Render(req.Subject, values),
		Content:       personalization.Render(req.Content, values),
		Variables:     personalization.ExtractVariables(combined),
		InvalidTokens: validation.InvalidTokens,
	}, nil
}

// Catalog lists the personalization variables the editor can offer.
func (p *Preview) Catalog() []personalization.Variable {
	return personalization.Catalog()
}
