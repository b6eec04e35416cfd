package llm

// costPerToken holds USD prices per 1K tokens: [input, output].
var costPerToken = map[string][2]float64{
	"gpt-3.5-turbo": {0.0005, 0.0015},
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-4o":        {0.005, 0.015},
	"gpt-4-turbo":   {0.01, 0.03},

	"claude-3-haiku-20240307":  {0.00025, 0.00125},
	"claude-3-5-haiku-latest":  {0.0008, 0.004},
	"claude-sonnet-4-20250514": {0.003, 0.015},
	"claude-opus-4-20250514":   {0.015, 0.075},
}

// CalculateCost prices a grading call for the logs. Unknown and local
// models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*prices[0] + float64(outputTokens)/1000.0*prices[1]
}
