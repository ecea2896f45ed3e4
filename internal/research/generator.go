// Package research turns a startup profile into a validated market-research
// report through one generative backend call.
package research

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/myrjola/goldenstream/internal/ai"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/jsonextract"
	"github.com/myrjola/goldenstream/internal/models"
)

var (
	// ErrBackend covers network and API failures on the generation call.
	ErrBackend = errors.NewSentinel("could not reach the research backend")
	// ErrMalformedResponse means no parseable JSON object could be recovered.
	ErrMalformedResponse = errors.NewSentinel("the AI returned an invalid report: malformed JSON")
	// ErrInvalidReport means the JSON parsed but required report fields are missing.
	ErrInvalidReport = errors.NewSentinel("the AI returned an invalid report: required fields missing")
)

// Backend is the single generative call the generator needs.
type Backend interface {
	Complete(ctx context.Context, req ai.Request) (ai.Response, error)
}

// Generator produces research reports. It issues exactly one backend call per
// Generate and persists nothing on failure.
type Generator struct {
	backend       Backend
	logger        *slog.Logger
	searchEnabled bool
}

func NewGenerator(backend Backend, logger *slog.Logger, searchEnabled bool) *Generator {
	return &Generator{
		backend:       backend,
		logger:        logger.With("source", "Generator"),
		searchEnabled: searchEnabled,
	}
}

// Generate builds the research prompt, calls the backend once and parses the
// answer into a validated report. When includeStrategicPerspectives is false
// the returned report has no strategicPerspectives field at all.
func (g *Generator) Generate(
	ctx context.Context,
	profile models.ResearchProfile,
	documents []models.UploadedDocument,
	includeStrategicPerspectives bool,
) (*models.ResearchReport, error) {
	req := ai.Request{
		System: systemInstruction,
		Turns: []ai.Turn{
			{Role: ai.RoleUser, Text: buildPrompt(profile, documents, includeStrategicPerspectives)},
		},
		ForceJSON:        true,
		GroundWithSearch: g.searchEnabled,
	}

	resp, err := g.backend.Complete(ctx, req)
	if err != nil {
		return nil, errors.Wrap(ErrBackend, "complete generation", errors.SlogError(err))
	}

	report, err := parseReport(resp.Text)
	if err != nil {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "unusable generation response",
			slog.Int("responseLength", len(resp.Text)), errors.SlogError(err))
		return nil, err
	}

	if !includeStrategicPerspectives {
		report.StrategicPerspectives = ""
	}

	if sources := dedupeSources(resp.Sources); len(sources) > 0 {
		report.Sources = sources
	}

	return report, nil
}

// parseReport runs the trim, extract, parse, validate pipeline on raw model
// output.
func parseReport(text string) (*models.ResearchReport, error) {
	extracted := jsonextract.FirstObject(strings.TrimSpace(text))

	var report models.ResearchReport
	if err := json.Unmarshal([]byte(extracted), &report); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, "parse report JSON")
	}

	if err := models.ValidateGeneratedReport(&report); err != nil {
		return nil, errors.Wrap(ErrInvalidReport, "validate report shape",
			slog.String("validation", err.Error()))
	}

	// Hold the enum invariant instead of failing the whole report over one
	// unexpected visualization kind.
	for i := range report.DataInsights {
		if !models.KnownVisualizationType(report.DataInsights[i].VisualizationType) {
			report.DataInsights[i].VisualizationType = models.VisualizationTypeNone
		}
	}

	return &report, nil
}

// dedupeSources drops incomplete citations and deduplicates by URI preserving
// first-seen order.
func dedupeSources(sources []ai.Source) []models.Source {
	seen := make(map[string]bool, len(sources))
	var out []models.Source
	for _, s := range sources {
		if s.URI == "" || s.Title == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		out = append(out, models.Source{URI: s.URI, Title: s.Title})
	}
	return out
}
