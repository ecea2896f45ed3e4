package main

import (
	"net/http"
	"strings"
)

type profilesResponse struct {
	Profiles []string `json:"profiles"`
	Current  string   `json:"current"`
}

func (app *application) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, current := app.history.Profiles()
	app.writeJSON(w, http.StatusOK, profilesResponse{Profiles: profiles, Current: current})
}

type profileRequest struct {
	Name string `json:"name"`
}

// createProfile registers a profile name and switches to it. Creating an
// existing profile is a no-op switch.
func (app *application) createProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !app.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		app.clientError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	if err := app.history.CreateProfile(r.Context(), req.Name); err != nil {
		app.serverError(w, r, err)
		return
	}

	profiles, current := app.history.Profiles()
	app.writeJSON(w, http.StatusCreated, profilesResponse{Profiles: profiles, Current: current})
}

// switchProfile moves the current-profile pointer, registering unknown names.
func (app *application) switchProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !app.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		app.clientError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	if err := app.history.SwitchProfile(r.Context(), req.Name); err != nil {
		app.serverError(w, r, err)
		return
	}

	profiles, current := app.history.Profiles()
	app.writeJSON(w, http.StatusOK, profilesResponse{Profiles: profiles, Current: current})
}
