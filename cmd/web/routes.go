package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	session := alice.New(app.sessionManager.LoadAndSave)
	// SSE responses never commit session changes, see serverSentEventMiddleware.
	sse := alice.New(app.serverSentEventMiddleware)

	mux.HandleFunc("GET /api/healthy", app.healthy)

	mux.Handle("POST /api/reports", session.ThenFunc(app.createReport))
	mux.Handle("GET /api/reports", session.ThenFunc(app.listReports))
	mux.Handle("GET /api/reports/{id}", session.ThenFunc(app.getReport))

	mux.Handle("GET /api/profiles", session.ThenFunc(app.listProfiles))
	mux.Handle("POST /api/profiles", session.ThenFunc(app.createProfile))
	mux.Handle("PUT /api/profiles/current", session.ThenFunc(app.switchProfile))

	mux.Handle("POST /api/chat", session.ThenFunc(app.openChat))
	mux.Handle("GET /api/chat", session.ThenFunc(app.getChat))
	mux.Handle("DELETE /api/chat", session.ThenFunc(app.closeChat))
	mux.Handle("POST /api/chat/messages", session.ThenFunc(app.sendChatMessage))
	mux.Handle("GET /api/chat/stream", sse.ThenFunc(app.streamChat))
	mux.Handle("POST /api/chat/apply", session.ThenFunc(app.applyChatEdit))

	return app.recoverPanic(app.logRequest(secureHeaders(noSurf(mux))))
}
