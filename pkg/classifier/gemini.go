package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var errUnknownLabel = errors.New("model answered with a label outside the allowed set")

// contentGenerator is the slice of *genai.Models the classifier uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier asks a hosted Gemini model to pick one of a fixed set of labels.
type GeminiClassifier struct {
	models contentGenerator
	model  string
	labels []string
}

func NewGeminiClassifier(ctx context.Context, apiKey, model string, labels []string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiClassifier(client.Models, model, labels), nil
}

func newGeminiClassifier(models contentGenerator, model string, labels []string) *GeminiClassifier {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClassifier{models: models, model: model, labels: labels}
}

func (c *GeminiClassifier) Classify(ctx context.Context, in Input) (string, error) {
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(c.prompt(in)), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	answer := strings.Trim(strings.TrimSpace(resp.Text()), "\"'`.")
	for _, label := range c.labels {
		if strings.EqualFold(answer, label) {
			return label, nil
		}
	}

	return "", fmt.Errorf("%w: %q", errUnknownLabel, answer)
}

func (c *GeminiClassifier) prompt(in Input) string {
	var b strings.Builder

	b.WriteString("You categorize personal bank transactions.\n")
	b.WriteString("Answer with exactly one of these labels and nothing else: ")
	b.WriteString(strings.Join(c.labels, ", "))
	b.WriteString("\n\nTransaction:\n")
	fmt.Fprintf(&b, "- name: %s\n", in.Name)
	if in.MerchantName != "" {
		fmt.Fprintf(&b, "- merchant: %s\n", in.MerchantName)
	}
	// stored convention: negative is money out
	fmt.Fprintf(&b, "- amount: %s (negative means money spent)\n", in.Amount.StringFixed(2))

	return b.String()
}
