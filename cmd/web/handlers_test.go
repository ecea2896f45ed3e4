package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/myrjola/goldenstream/internal/ai"
	"github.com/myrjola/goldenstream/internal/broker"
	"github.com/myrjola/goldenstream/internal/chat"
	"github.com/myrjola/goldenstream/internal/db"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/repositories"
	"github.com/myrjola/goldenstream/internal/research"
	"github.com/myrjola/goldenstream/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	response ai.Response
	err      error
	block    chan struct{}
}

func (f *fakeBackend) Complete(_ context.Context, _ ai.Request) (ai.Response, error) {
	f.mu.Lock()
	block := f.block
	response := f.response
	err := f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return response, err
}

const validReportJSON = `{
  "executiveSummary": "EcoCharge can win the fast-charging niche.",
  "marketAnalysis": {"marketSize": "big", "keyTrends": ["fast charging"], "competitorLandscape": []},
  "dataInsights": []
}`

// newTestApplication wires the handlers against an in-memory database and the
// given fake backend.
func newTestApplication(t *testing.T, backend *fakeBackend) (*application, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)

	dbs, err := db.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dbs.ReadWriteDB.Close())
		require.NoError(t, dbs.ReadDB.Close())
	})

	history, err := repositories.NewHistoryRepository(ctx, dbs, logger, 15)
	require.NoError(t, err)

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.New(dbs.ReadWriteDB.DB)

	replyBroker := broker.NewChannelBroker[string, models.ChatMessage]()
	go replyBroker.Start()
	t.Cleanup(replyBroker.Stop)

	app := &application{
		logger:         logger,
		sessionManager: sessionManager,
		generator:      research.NewGenerator(backend, logger, false),
		chatBackend:    backend,
		history:        history,
		replyBroker:    replyBroker,
		editors:        make(map[string]*chat.Session),
	}

	ts := httptest.NewServer(app.routes())
	t.Cleanup(ts.Close)

	return app, ts
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	require.NoError(t, resp.Body.Close())
	return v
}

func generateRequestBody() map[string]any {
	return map[string]any{
		"profile":                      map[string]string{"startupName": "EcoCharge", "sector": "EV charging"},
		"documents":                    []any{},
		"includeStrategicPerspectives": true,
	}
}

func Test_application_createReport(t *testing.T) {
	backend := &fakeBackend{response: ai.Response{Text: validReportJSON}}
	_, ts := newTestApplication(t, backend)
	client := newTestClient(t)

	resp := postJSON(t, client, ts.URL+"/api/reports", generateRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeBody[models.HistoryItem](t, resp)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "EcoCharge", item.StartupName)
	assert.Equal(t, "Default", item.Profile)
	assert.Equal(t, "EcoCharge can win the fast-charging niche.", item.Report.ExecutiveSummary)

	// The generated report shows up in the history, newest first.
	resp, err := client.Get(ts.URL + "/api/reports")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decodeBody[[]models.HistoryItem](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)

	// Single item lookup.
	resp, err = client.Get(ts.URL + "/api/reports/" + item.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[models.HistoryItem](t, resp)
	assert.Equal(t, item.ID, got.ID)

	resp, err = client.Get(ts.URL + "/api/reports/unknown")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_application_createReport_failures(t *testing.T) {
	backend := &fakeBackend{response: ai.Response{Text: "no JSON here, sorry"}}
	_, ts := newTestApplication(t, backend)
	client := newTestClient(t)

	resp := postJSON(t, client, ts.URL+"/api/reports", generateRequestBody())
	body := decodeBody[map[string]string](t, resp)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid report")

	// A failed generation leaves the history untouched.
	resp, err := client.Get(ts.URL + "/api/reports")
	require.NoError(t, err)
	assert.Empty(t, decodeBody[[]models.HistoryItem](t, resp))

	// Missing startup name is a client error.
	resp = postJSON(t, client, ts.URL+"/api/reports", map[string]any{
		"profile": map[string]string{"sector": "EV charging"},
	})
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_application_createReport_busy(t *testing.T) {
	block := make(chan struct{})
	backend := &fakeBackend{response: ai.Response{Text: validReportJSON}, block: block}
	app, ts := newTestApplication(t, backend)
	client := newTestClient(t)

	firstDone := make(chan *http.Response, 1)
	go func() {
		firstDone <- postJSON(t, client, ts.URL+"/api/reports", generateRequestBody())
	}()

	// Wait for the first generation to be in flight, then expect a conflict.
	require.Eventually(t, func() bool {
		return app.generating.Load()
	}, 5*time.Second, 10*time.Millisecond)
	resp := postJSON(t, newTestClient(t), ts.URL+"/api/reports", generateRequestBody())
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(block)
	resp = <-firstDone
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func seedHistoryItem(t *testing.T, app *application) models.HistoryItem {
	t.Helper()
	item, err := repositories.NewHistoryItem("EcoCharge", "Default", models.ResearchReport{
		ExecutiveSummary: "original summary",
		MarketAnalysis:   &models.MarketAnalysis{MarketSize: "big"},
		DataInsights:     []models.Insight{},
	})
	require.NoError(t, err)
	require.NoError(t, app.history.Append(context.Background(), item))
	return item
}

func Test_application_chatFlow(t *testing.T) {
	backend := &fakeBackend{response: ai.Response{
		Text: "```json\n" +
			`{"executiveSummary":"edited summary","marketAnalysis":{"marketSize":"bigger"},"dataInsights":[]}` +
			"\n```",
	}}
	app, ts := newTestApplication(t, backend)
	client := newTestClient(t)
	item := seedHistoryItem(t, app)

	// No session yet.
	resp, err := client.Get(ts.URL + "/api/chat")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Open a session, the transcript starts with the greeting.
	resp = postJSON(t, client, ts.URL+"/api/chat", map[string]string{"reportId": item.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	opened := decodeBody[chatResponse](t, resp)
	require.Len(t, opened.Messages, 1)
	assert.Equal(t, models.ChatRoleAssistant, opened.Messages[0].Role)
	assert.Equal(t, item.ID, opened.ReportID)
	assert.False(t, opened.Busy)

	// Send a message, the user turn is appended synchronously.
	resp = postJSON(t, client, ts.URL+"/api/chat/messages", map[string]string{"text": "make it punchier"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sent := decodeBody[chatResponse](t, resp)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, models.ChatRoleUser, sent.Messages[1].Role)

	// The classified reply arrives over the SSE stream.
	reply := readStreamedMessage(t, client, ts.URL+"/api/chat/stream")
	assert.Equal(t, models.ChatKindEditProposal, reply.Kind)
	require.NotNil(t, reply.CandidateReport)
	assert.Equal(t, "edited summary", reply.CandidateReport.ExecutiveSummary)

	// Apply the proposal, the history item keeps its identity.
	resp = postJSON(t, client, ts.URL+"/api/chat/apply", map[string]string{"messageId": reply.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[models.HistoryItem](t, resp)
	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, "EcoCharge", updated.StartupName)
	assert.Equal(t, "edited summary", updated.Report.ExecutiveSummary)

	persisted, err := app.history.GetByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited summary", persisted.Report.ExecutiveSummary)

	// Close the session.
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/api/chat")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_application_chatApplyWithoutProposal(t *testing.T) {
	backend := &fakeBackend{response: ai.Response{Text: "just chatting"}}
	app, ts := newTestApplication(t, backend)
	client := newTestClient(t)
	item := seedHistoryItem(t, app)

	resp := postJSON(t, client, ts.URL+"/api/chat", map[string]string{"reportId": item.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp = postJSON(t, client, ts.URL+"/api/chat/messages", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	reply := readStreamedMessage(t, client, ts.URL+"/api/chat/stream")
	assert.Equal(t, models.ChatKindConversational, reply.Kind)

	resp = postJSON(t, client, ts.URL+"/api/chat/apply", map[string]string{"messageId": reply.ID})
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_application_chatBusy(t *testing.T) {
	block := make(chan struct{})
	backend := &fakeBackend{response: ai.Response{Text: "slow answer"}, block: block}
	app, ts := newTestApplication(t, backend)
	client := newTestClient(t)
	item := seedHistoryItem(t, app)

	resp := postJSON(t, client, ts.URL+"/api/chat", map[string]string{"reportId": item.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp = postJSON(t, client, ts.URL+"/api/chat/messages", map[string]string{"text": "first"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp = postJSON(t, client, ts.URL+"/api/chat/messages", map[string]string{"text": "second"})
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(block)
	reply := readStreamedMessage(t, client, ts.URL+"/api/chat/stream")
	assert.Equal(t, "slow answer", reply.Text)
}

// readStreamedMessage subscribes to the SSE stream and decodes the first
// message event.
func readStreamedMessage(t *testing.T, client *http.Client, url string) models.ChatMessage {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var msg models.ChatMessage
			require.NoError(t, json.Unmarshal([]byte(data), &msg))
			return msg
		}
	}
	t.Fatal("no message event received on the stream")
	return models.ChatMessage{} //nolint:exhaustruct // unreachable
}
