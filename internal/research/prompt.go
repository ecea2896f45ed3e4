package research

import (
	"fmt"
	"strings"

	"github.com/myrjola/goldenstream/internal/models"
)

const systemInstruction = `You are a senior market-research analyst producing ` +
	`actionable desk research for startup founders. Base your analysis on ` +
	`verifiable market data and answer with a single JSON object only.`

// buildPrompt assembles the structured generation prompt: profile fields,
// delimited document blocks and the JSON schema directive.
func buildPrompt(
	profile models.ResearchProfile,
	documents []models.UploadedDocument,
	includeStrategicPerspectives bool,
) string {
	var b strings.Builder

	b.WriteString("Produce a market-research report for the following startup.\n\n")
	writeField(&b, "Startup name", profile.StartupName)
	writeField(&b, "Sector", profile.Sector)
	writeField(&b, "Target audience", profile.TargetAudience)
	writeField(&b, "Value proposition", profile.ValueProposition)
	writeField(&b, "Market dynamics", profile.MarketDynamics)
	writeField(&b, "Competitive landscape", profile.CompetitiveLandscape)
	writeField(&b, "Consumer behavior", profile.ConsumerBehavior)
	writeField(&b, "Regulatory risks", profile.RegulatoryRisks)
	writeField(&b, "Research objective", profile.Objective)

	for _, doc := range documents {
		fmt.Fprintf(&b, "\n--- BEGIN DOCUMENT: %s ---\n%s\n--- END DOCUMENT: %s ---\n",
			doc.Name, doc.Content, doc.Name)
	}

	b.WriteString(schemaDirective(includeStrategicPerspectives))

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

// schemaDirective spells out the exact response shape. The optional
// strategicPerspectives key is only requested when the caller asked for it.
func schemaDirective(includeStrategicPerspectives bool) string {
	perspectives := ""
	if includeStrategicPerspectives {
		perspectives = `,
  "strategicPerspectives": "strategic recommendations, *asterisks* for emphasis"`
	}
	return fmt.Sprintf(`
Respond with exactly one JSON object and no other text, matching this shape:
{
  "executiveSummary": "concise summary, *asterisks* for emphasis",
  "marketAnalysis": {
    "marketSize": "string",
    "keyTrends": ["string"],
    "competitorLandscape": [{"name": "string", "strengths": "string", "weaknesses": "string"}]
  },
  "dataInsights": [{
    "metric": "string",
    "value": "display string",
    "numericalValue": 0,
    "commentary": "string",
    "visualizationType": "BAR_CHART | PIE_CHART | NUMBER_CARD | GAUGE_CHART | NONE"
  }]%s
}
For GAUGE_CHART and PIE_CHART insights, numericalValue must be a 0-100 percentage.
`, perspectives)
}
