package llm

import "strings"

// Pricing holds USD cost per million tokens for one model.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// knownPricing maps model name prefixes to pricing. Longest prefix wins.
// Locally served models cost nothing and are absent on purpose.
var knownPricing = map[string]Pricing{
	"gemini-2.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 10},
	"gemini-2.5-flash": {InputPerMTok: 0.30, OutputPerMTok: 2.50},
	"gemini-2.0-flash": {InputPerMTok: 0.10, OutputPerMTok: 0.40},

	"claude-opus":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4},

	"deepseek-chat":     {InputPerMTok: 0.27, OutputPerMTok: 1.10},
	"deepseek-reasoner": {InputPerMTok: 0.55, OutputPerMTok: 2.19},
}

// PricingFor returns the pricing for a model, using longest-prefix
// matching. Unknown models report zero cost.
func PricingFor(modelID string) Pricing {
	modelID = strings.ToLower(modelID)
	bestMatch := ""
	for prefix := range knownPricing {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestMatch) {
			bestMatch = prefix
		}
	}
	if bestMatch == "" {
		return Pricing{}
	}
	return knownPricing[bestMatch]
}

// Cost computes the USD cost of one exchange.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}
