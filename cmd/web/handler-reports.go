package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/repositories"
	"github.com/myrjola/goldenstream/internal/research"
)

type createReportRequest struct {
	Profile                      models.ResearchProfile    `json:"profile"`
	Documents                    []models.UploadedDocument `json:"documents"`
	IncludeStrategicPerspectives bool                      `json:"includeStrategicPerspectives"`
}

// createReport runs one generation call and appends the result to the current
// profile's history. Only one generation may be in flight at a time.
func (app *application) createReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !app.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Profile.StartupName) == "" {
		app.clientError(w, r, http.StatusBadRequest, "startupName is required")
		return
	}

	if !app.generating.CompareAndSwap(false, true) {
		app.clientError(w, r, http.StatusConflict, "a report is already being generated")
		return
	}
	defer app.generating.Store(false)

	ctx := r.Context()
	report, err := app.generator.Generate(ctx, req.Profile, req.Documents, req.IncludeStrategicPerspectives)
	if err != nil {
		// History stays untouched on a failed attempt.
		switch {
		case errors.Is(err, research.ErrBackend),
			errors.Is(err, research.ErrMalformedResponse),
			errors.Is(err, research.ErrInvalidReport):
			app.logger.LogAttrs(ctx, slog.LevelWarn, "report generation failed", errors.SlogError(err))
			app.writeError(w, http.StatusBadGateway, err.Error())
		default:
			app.serverError(w, r, err)
		}
		return
	}

	item, err := repositories.NewHistoryItem(req.Profile.StartupName, app.history.CurrentProfile(), *report)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	if err = app.history.Append(ctx, item); err != nil {
		app.serverError(w, r, err)
		return
	}

	app.writeJSON(w, http.StatusCreated, item)
}

// listReports returns the history for the requested profile, defaulting to the
// current one, newest first.
func (app *application) listReports(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = app.history.CurrentProfile()
	}
	app.writeJSON(w, http.StatusOK, app.history.ListByProfile(profile))
}

func (app *application) getReport(w http.ResponseWriter, r *http.Request) {
	item, err := app.history.GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, http.StatusOK, item)
}
