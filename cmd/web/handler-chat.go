package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/myrjola/goldenstream/internal/chat"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/repositories"
)

type chatResponse struct {
	ReportID string               `json:"reportId"`
	Messages []models.ChatMessage `json:"messages"`
	Busy     bool                 `json:"busy"`
}

func (app *application) chatResponse(session *chat.Session) chatResponse {
	messages, busy := session.Transcript()
	return chatResponse{
		ReportID: session.Item().ID,
		Messages: messages,
		Busy:     busy,
	}
}

type openChatRequest struct {
	ReportID string `json:"reportId"`
}

// openChat binds a new edit session to a history item, replacing any session
// this browser had open before.
func (app *application) openChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if !app.readJSON(w, r, &req) {
		return
	}

	item, err := app.history.GetByID(req.ReportID)
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, err)
		return
	}

	editorID, err := app.editorID(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	session, err := chat.NewSession(app.chatBackend, app.history, app.logger, item)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	app.mu.Lock()
	if previous, ok := app.editors[editorID]; ok {
		previous.Close()
	}
	app.editors[editorID] = session
	app.mu.Unlock()

	app.writeJSON(w, http.StatusCreated, app.chatResponse(session))
}

func (app *application) getChat(w http.ResponseWriter, r *http.Request) {
	session, _, ok := app.editorSession(r)
	if !ok {
		app.notFound(w, r)
		return
	}
	app.writeJSON(w, http.StatusOK, app.chatResponse(session))
}

// closeChat discards the open session. A reply still in flight is dropped when
// it arrives.
func (app *application) closeChat(w http.ResponseWriter, r *http.Request) {
	session, editorID, ok := app.editorSession(r)
	if !ok {
		app.notFound(w, r)
		return
	}

	session.Close()
	app.mu.Lock()
	delete(app.editors, editorID)
	app.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

type sendChatMessageRequest struct {
	Text string `json:"text"`
}

// sendChatMessage appends the user's message and launches the single backend
// call. The assistant's reply is delivered over the SSE stream.
func (app *application) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	session, editorID, ok := app.editorSession(r)
	if !ok {
		app.notFound(w, r)
		return
	}

	var req sendChatMessageRequest
	if !app.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		app.clientError(w, r, http.StatusBadRequest, "text is required")
		return
	}

	// The reply must outlive this request, so it is not bound to r.Context().
	replies, err := session.SendMessage(context.WithoutCancel(r.Context()), req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrBusy) {
			app.clientError(w, r, http.StatusConflict, "the assistant is still responding")
			return
		}
		if errors.Is(err, chat.ErrClosed) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, err)
		return
	}

	app.publishReply(editorID, replies)

	app.writeJSON(w, http.StatusAccepted, app.chatResponse(session))
}

// publishReply hands the pending reply to the broker so the SSE stream can
// pick it up. An unconsumed reply is dropped after a timeout, it remains
// available in the transcript.
func (app *application) publishReply(editorID string, replies <-chan models.ChatMessage) {
	out := make(chan models.ChatMessage)
	app.replyBroker.Publish(editorID, out)
	go func() {
		defer app.replyBroker.Unpublish(editorID)
		defer close(out)
		for reply := range replies {
			select {
			case out <- reply:
			case <-time.After(time.Minute):
				return
			}
		}
	}()
}

// streamChat delivers the pending assistant reply over SSE. When no reply is
// pending the stream closes immediately.
func (app *application) streamChat(w http.ResponseWriter, r *http.Request) {
	_, editorID, ok := app.editorSession(r)
	if !ok {
		app.notFound(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.serverError(w, r, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	replies, ok := <-app.replyBroker.Subscribe(editorID)
	if !ok {
		// Nothing pending, the client should fetch the transcript instead.
		return
	}

	for reply := range replies {
		payload, err := encodeJSON(reply)
		if err != nil {
			app.logger.Error("could not encode chat reply", errors.SlogError(err))
			return
		}
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}

type applyChatEditRequest struct {
	MessageID string `json:"messageId"`
}

// applyChatEdit makes an edit proposal durable, replacing the bound history
// item's report in place.
func (app *application) applyChatEdit(w http.ResponseWriter, r *http.Request) {
	session, _, ok := app.editorSession(r)
	if !ok {
		app.notFound(w, r)
		return
	}

	var req applyChatEditRequest
	if !app.readJSON(w, r, &req) {
		return
	}

	item, err := session.ApplyEdit(r.Context(), req.MessageID)
	if err != nil {
		if errors.Is(err, chat.ErrNoCandidate) {
			app.clientError(w, r, http.StatusConflict, "message has no edit proposal to apply")
			return
		}
		if errors.Is(err, chat.ErrClosed) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, err)
		return
	}

	app.writeJSON(w, http.StatusOK, item)
}
