package replygen

import (
	"context"
	"fmt"
	"strings"
)

// TemplateGenerator drafts replies from fixed rating-band templates. It never fails, so
// it doubles as the fallback behind the LLM generator.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(ctx context.Context, req ReplyRequest) (string, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" || strings.EqualFold(name, "anonymous") {
		name = "there"
	}

	var body string
	switch {
	case req.Rating >= 4:
		body = fmt.Sprintf("Thank you so much, %s! We're thrilled you had a great experience at %s and hope to see you again soon.", name, req.BusinessName)
	case req.Rating == 3:
		body = fmt.Sprintf("Thank you for your feedback, %s. We're glad you visited %s and we'd love to make your next experience even better.", name, req.BusinessName)
	default:
		body = fmt.Sprintf("Hi %s, we're sorry your experience at %s fell short. We take this seriously and would appreciate the chance to make it right, so please reach out to us directly.", name, req.BusinessName)
	}

	if sig := strings.TrimSpace(req.Voice.Signature); sig != "" {
		body = body + "\n" + sig
	}
	return body, nil
}
