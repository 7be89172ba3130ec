package replygen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ReplyRequest carries everything the generator needs to draft one reply.
type ReplyRequest struct {
	BusinessName string
	CustomerName string
	Rating       int
	ReviewText   string
	Voice        models.BrandVoice
}

// Generator drafts a reply for one review. Implementations must return a non-empty
// draft or an error, never both empty.
type Generator interface {
	Generate(ctx context.Context, req ReplyRequest) (string, error)
}

// LLMGenerator drafts replies through an OpenAI-compatible chat model.
type LLMGenerator struct {
	llm *openai.LLM
}

func NewLLMGenerator() (*LLMGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &LLMGenerator{llm: llm}, nil
}

func (g *LLMGenerator) Generate(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := buildPrompt(req)

	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(300),
	)
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}

	reply := strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if reply == "" {
		return "", errors.New("model returned an empty reply")
	}
	return reply, nil
}

func buildPrompt(req ReplyRequest) string {
	tone := req.Voice.Tone
	if tone == "" {
		tone = "friendly"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the owner of %s replying to a customer review on Google.\n", req.BusinessName)
	fmt.Fprintf(&b, "Write a %s reply to the review below. Keep it under 80 words, thank the customer by name, and do not offer discounts or make promises.\n", tone)
	if req.Voice.Language != "" {
		fmt.Fprintf(&b, "Write the reply in %s.\n", req.Voice.Language)
	}
	if req.Rating <= 2 {
		b.WriteString("The review is negative. Apologize sincerely, do not argue, and invite the customer to get in touch directly.\n")
	}
	fmt.Fprintf(&b, "\nCustomer: %s\nRating: %d out of 5\nReview: %s\n", req.CustomerName, req.Rating, req.ReviewText)
	if req.Voice.Signature != "" {
		fmt.Fprintf(&b, "\nEnd the reply with this signature on its own line: %s\n", req.Voice.Signature)
	}
	b.WriteString("\nReply with the response text only.")
	return b.String()
}

// GeneratorWithFallback tries the primary generator and falls back to the secondary
// when it fails, so tenants still get a serviceable draft during model outages.
type GeneratorWithFallback struct {
	Primary   Generator
	Secondary Generator
}

func (g *GeneratorWithFallback) Generate(ctx context.Context, req ReplyRequest) (string, error) {
	reply, err := g.Primary.Generate(ctx, req)
	if err == nil {
		return reply, nil
	}
	config.LogError(config.GetLogger(), "replygen", "Generate", "primary generator failed, using fallback", req.BusinessName, err)
	return g.Secondary.Generate(ctx, req)
}
