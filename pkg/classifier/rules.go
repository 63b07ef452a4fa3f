package classifier

import (
	"context"
	"strings"
)

const DefaultFallback = "other"

type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules is the keyword table used when none is configured.
var DefaultRules = []Rule{
	{Label: "groceries", Keywords: []string{"grocery", "food"}},
	{Label: "dining", Keywords: []string{"restaurant", "cafe"}},
	{Label: "transportation", Keywords: []string{"transport", "uber"}},
	{Label: "utilities", Keywords: []string{"utility", "bill"}},
}

// RuleClassifier picks the first rule with a keyword contained in the name or merchant.
type RuleClassifier struct {
	rules    []Rule
	fallback string
}

func NewRuleClassifier(rules []Rule, fallback string) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if fallback == "" {
		fallback = DefaultFallback
	}

	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		normalized = append(normalized, Rule{Label: r.Label, Keywords: keywords})
	}

	return &RuleClassifier{rules: normalized, fallback: fallback}
}

func (c *RuleClassifier) Classify(ctx context.Context, in Input) (string, error) {
	text := strings.ToLower(in.Name + " " + in.MerchantName)

	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, keyword) {
				return rule.Label, nil
			}
		}
	}

	return c.fallback, nil
}

// Labels lists every label the classifier can return, fallback last.
func (c *RuleClassifier) Labels() []string {
	labels := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		labels = append(labels, r.Label)
	}
	return append(labels, c.fallback)
}
