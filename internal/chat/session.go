// Package chat implements the conversational report editor. Each open editor
// is an explicit Session bound to one history item; there is no module-level
// state.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/myrjola/goldenstream/internal/ai"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/jsonextract"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/random"
)

const (
	greeting = "Hello! I'm the GDS Assistant. I can help you refine this report. " +
		"Ask me to edit a section or just discuss the findings."
	editConfirmation = "I've made the requested edits. Review the proposed report and " +
		"apply it to make the changes permanent."
	applyConfirmation = "The report has been updated."
	apology           = "Sorry, I couldn't get a response. Please check your connection or try again."
)

const messageIDLength = 12

const editorInstruction = `You are the GDS Assistant helping a founder refine a ` +
	`market-research report. When the user asks for an edit, respond with the ` +
	`complete updated report as a single JSON object in the original schema. ` +
	`For questions or discussion, answer in plain text without JSON.`

var (
	// ErrBusy is returned while a backend call is already in flight.
	ErrBusy = errors.NewSentinel("the assistant is still responding")
	// ErrClosed is returned after Close.
	ErrClosed = errors.NewSentinel("the edit session is closed")
	// ErrNoCandidate is returned when applying a message that carries no report.
	ErrNoCandidate = errors.NewSentinel("message has no edit proposal to apply")
)

// Backend is the single completion call the session needs.
type Backend interface {
	Complete(ctx context.Context, req ai.Request) (ai.Response, error)
}

// Store persists accepted edits back into history.
type Store interface {
	ReplaceByID(ctx context.Context, id string, report models.ResearchReport) error
}

// Session is one edit conversation bound to a history item. The transcript
// starts with a synthetic assistant greeting, no backend call is made until
// the first SendMessage.
type Session struct {
	backend Backend
	store   Store
	logger  *slog.Logger

	mu         sync.Mutex
	item       models.HistoryItem
	transcript []models.ChatMessage
	busy       bool
	closed     bool
}

func NewSession(backend Backend, store Store, logger *slog.Logger, item models.HistoryItem) (*Session, error) {
	greet, err := newMessage(models.ChatRoleAssistant, models.ChatKindConversational, greeting, nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		backend:    backend,
		store:      store,
		logger:     logger.With("source", "chat.Session"),
		item:       item,
		transcript: []models.ChatMessage{greet},
	}, nil
}

// Item returns the bound history item in its current state.
func (s *Session) Item() models.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item
}

// Transcript returns a copy of the conversation so far and whether a backend
// call is in flight.
func (s *Session) Transcript() ([]models.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := make([]models.ChatMessage, len(s.transcript))
	copy(transcript, s.transcript)
	return transcript, s.busy
}

// SendMessage appends the user's message synchronously and launches exactly
// one backend call. The returned channel delivers the classified assistant
// reply and is then closed. While the call is pending the session is busy and
// further sends fail with ErrBusy. A backend failure becomes a fixed apology
// message, never an error.
func (s *Session) SendMessage(ctx context.Context, text string) (<-chan models.ChatMessage, error) {
	userMsg, err := newMessage(models.ChatRoleUser, models.ChatKindConversational, text, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.transcript = append(s.transcript, userMsg)
	req := s.buildRequestLocked()
	s.mu.Unlock()

	replies := make(chan models.ChatMessage, 1)
	go func() {
		defer close(replies)
		reply := s.completeTurn(ctx, req)

		s.mu.Lock()
		s.busy = false
		if s.closed {
			// The session context changed while the call was in flight. Drop
			// the stale reply instead of applying it to the wrong transcript.
			s.mu.Unlock()
			return
		}
		s.transcript = append(s.transcript, reply)
		s.mu.Unlock()

		replies <- reply
	}()

	return replies, nil
}

// ApplyEdit replaces the bound report with the candidate attached to the given
// message and persists the change. The history item keeps its id, position,
// startup name and profile. Proposals are inert until applied through here.
func (s *Session) ApplyEdit(ctx context.Context, messageID string) (models.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.HistoryItem{}, ErrClosed
	}

	var candidate *models.ResearchReport
	for _, msg := range s.transcript {
		if msg.ID == messageID {
			candidate = msg.CandidateReport
			break
		}
	}
	if candidate == nil {
		return models.HistoryItem{}, ErrNoCandidate
	}

	if err := s.store.ReplaceByID(ctx, s.item.ID, *candidate); err != nil {
		return models.HistoryItem{}, errors.Wrap(err, "persist applied edit",
			slog.String("historyItemID", s.item.ID))
	}
	s.item.Report = *candidate

	confirmation, err := newMessage(models.ChatRoleAssistant, models.ChatKindConversational, applyConfirmation, nil)
	if err != nil {
		return models.HistoryItem{}, err
	}
	s.transcript = append(s.transcript, confirmation)

	return s.item, nil
}

// Close discards the session. An in-flight reply is dropped when it arrives.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// buildRequestLocked carries the full session context to the backend: the
// bound report followed by the transcript so far.
func (s *Session) buildRequestLocked() ai.Request {
	reportJSON, err := json.Marshal(s.item.Report)
	if err != nil {
		// A report that round-tripped through JSON cannot fail to marshal.
		reportJSON = []byte("{}")
	}

	turns := make([]ai.Turn, 0, len(s.transcript)+1)
	turns = append(turns, ai.Turn{
		Role: ai.RoleUser,
		Text: "The report being edited:\n" + string(reportJSON),
	})
	for _, msg := range s.transcript {
		role := ai.RoleUser
		if msg.Role == models.ChatRoleAssistant {
			role = ai.RoleModel
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Text})
	}

	return ai.Request{
		System: editorInstruction,
		Turns:  turns,
	}
}

// completeTurn performs the backend call and classifies the answer. Failures
// are converted to the apology message so the session keeps working.
func (s *Session) completeTurn(ctx context.Context, req ai.Request) models.ChatMessage {
	resp, err := s.backend.Complete(ctx, req)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "chat turn failed", errors.SlogError(err))
		return mustMessage(models.ChatRoleAssistant, models.ChatKindConversational, apology, nil)
	}
	return classifyReply(resp.Text)
}

// classifyReply decides between an edit proposal and conversational text. A
// reply whose recovered JSON validates as a minimal report shape is a
// proposal; everything else is passed through verbatim.
func classifyReply(text string) models.ChatMessage {
	extracted := jsonextract.FirstObject(text)

	var report models.ResearchReport
	if err := json.Unmarshal([]byte(extracted), &report); err != nil {
		return mustMessage(models.ChatRoleAssistant, models.ChatKindConversational, text, nil)
	}
	if err := models.ValidateReportShape(&report); err != nil {
		return mustMessage(models.ChatRoleAssistant, models.ChatKindConversational, text, nil)
	}

	return mustMessage(models.ChatRoleAssistant, models.ChatKindEditProposal, editConfirmation, &report)
}

func newMessage(
	role models.ChatRole, kind models.ChatKind, text string, candidate *models.ResearchReport,
) (models.ChatMessage, error) {
	id, err := random.Letters(messageIDLength)
	if err != nil {
		return models.ChatMessage{}, errors.Wrap(err, "generate message id")
	}
	return models.ChatMessage{
		ID:              id,
		Role:            role,
		Kind:            kind,
		Text:            text,
		CandidateReport: candidate,
	}, nil
}

func mustMessage(
	role models.ChatRole, kind models.ChatKind, text string, candidate *models.ResearchReport,
) models.ChatMessage {
	msg, err := newMessage(role, kind, text, candidate)
	if err != nil {
		// crypto/rand is the only failure source and it does not fail in practice.
		msg = models.ChatMessage{Role: role, Kind: kind, Text: text, CandidateReport: candidate}
	}
	return msg
}
