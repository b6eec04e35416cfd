package grading

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces {{variable}} placeholders with values from vars. Every
// placeholder must have a value.
func Render(template string, vars map[string]string) (string, error) {
	var missing []string
	for _, v := range ExtractVariables(template) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		return vars[match[2:len(match)-2]]
	}), nil
}

// ExtractVariables lists placeholder names in order of first appearance.
func ExtractVariables(template string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

const systemPrompt = `You are an experienced presentation coach grading a team presentation in Korean.
Score every criterion as a whole number between 0 and its weight, and write one or two
sentences of constructive feedback in Korean for each.

Jitter and shimmer are given in percent per transcript segment. Typical calm speech stays
below about 1% jitter and 4% shimmer; noticeably higher values suggest a nervous or
unsteady voice and may be reflected in delivery-related criteria.

Reply with ONLY a JSON object of the form:
{"results": [{"criterion": "<name>", "score": "<integer>", "feedback": "<text>"}]}
with one entry per criterion, in the order given.`

const userPromptTemplate = `Topic: {{topic}}
Team: {{team}}

Criteria (name : weight):
{{criteria}}

Voice stability: mean jitter {{mean_jitter}}%, mean shimmer {{mean_shimmer}}% over {{segment_count}} segments.

Transcript:
{{transcript}}
{{slides}}`
