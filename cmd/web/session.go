package main

import (
	"net/http"

	"github.com/myrjola/goldenstream/internal/chat"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/random"
)

const editorIDSessionKey = "editorID"

const editorIDLength = 20

// editorID returns the stable id identifying this browser's editor, creating
// and storing it in the scs session on first use.
func (app *application) editorID(r *http.Request) (string, error) {
	ctx := r.Context()
	id := app.sessionManager.GetString(ctx, editorIDSessionKey)
	if id == "" {
		var err error
		if id, err = random.Letters(editorIDLength); err != nil {
			return "", errors.Wrap(err, "generate editor id")
		}
		app.sessionManager.Put(ctx, editorIDSessionKey, id)
	}
	return id, nil
}

// editorSession resolves the open edit session for this browser, if any.
func (app *application) editorSession(r *http.Request) (*chat.Session, string, bool) {
	id := app.sessionManager.GetString(r.Context(), editorIDSessionKey)
	if id == "" {
		return nil, "", false
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	session, ok := app.editors[id]
	return session, id, ok
}
