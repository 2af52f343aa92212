package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bizbot-backend/internal/assistant"
	"bizbot-backend/internal/config"
	"bizbot-backend/internal/store"
	"bizbot-backend/internal/types"
)

type fakePipeline struct {
	mu    sync.Mutex
	seen  []assistant.Inbound
	reply assistant.Reply
	err   error
}

func (p *fakePipeline) HandleInbound(ctx context.Context, in assistant.Inbound) (assistant.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return assistant.Reply{}, errors.New("pipeline context has no deadline")
	}
	p.seen = append(p.seen, in)
	return p.reply, p.err
}

type panickyPipeline struct {
	fakePipeline
}

func (p *panickyPipeline) HandleInbound(ctx context.Context, in assistant.Inbound) (assistant.Reply, error) {
	if in.Text == "boom" {
		panic("renderer blew up")
	}
	return p.fakePipeline.HandleInbound(ctx, in)
}

func (p *fakePipeline) inbound() []assistant.Inbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]assistant.Inbound(nil), p.seen...)
}

type sent struct {
	to, body, caption string
	image             []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, body: body})
	return nil
}

func (f *fakeSender) SendMedia(_ context.Context, to string, image []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, image: image, caption: caption})
	return nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

func testConfig() config.Config {
	return config.Config{
		AllowedOrigins:  []string{"*"},
		WebhookSecret:   "s3cret",
		DedupeTTL:       time.Minute,
		PipelineTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, p Pipeline, d Deps) (*Server, *fakeSender) {
	t.Helper()
	snd := &fakeSender{}
	d.Pipeline = p
	d.Sender = snd
	d.Logger = zaptest.NewLogger(t)
	s, err := NewServer(testConfig(), d)
	require.NoError(t, err)
	return s, snd
}

func webhookBody(id, text string) string {
	return `{"object": "whatsapp_business_account", "entry": [{"changes": [{"field": "messages", "value": {
		"contacts": [{"profile": {"name": "Ada"}, "wa_id": "15550001"}],
		"messages": [{"from": "15550001", "id": "` + id + `", "type": "text", "text": {"body": "` + text + `"}}]}}]}]}`
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func waitIdle(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestNewServer_RequiresPipelineAndSender(t *testing.T) {
	_, err := NewServer(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestWebhookVerify(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, Deps{})

	rec := do(s, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=12345", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	for _, target := range []string{
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1",
		"/webhook?hub.verify_token=s3cret&hub.challenge=1",
		"/webhook",
	} {
		rec := do(s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.JSONEq(t, `{"error": "Invalid or missing query params"}`, rec.Body.String())
	}
}

func TestWebhook_HandlesAndDeliversInBackground(t *testing.T) {
	p := &fakePipeline{reply: assistant.TextReply("Added 5 apples at $2.0 each to inventory.")}
	s, snd := newTestServer(t, p, Deps{})

	rec := do(s, http.MethodPost, "/webhook", webhookBody("wamid.1", "add 5 apples at $2 each"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "received", "accepted": 1}`, rec.Body.String())
	waitIdle(t, s)

	assert.Equal(t, []assistant.Inbound{{Phone: "15550001", Name: "Ada", Text: "add 5 apples at $2 each"}}, p.inbound())
	assert.Equal(t, []sent{{to: "15550001", body: "Added 5 apples at $2.0 each to inventory."}}, snd.all())
}

func TestWebhook_DeliversMediaReply(t *testing.T) {
	p := &fakePipeline{reply: assistant.MediaReply("iVBORw==", "Here's your bar chart")}
	s, snd := newTestServer(t, p, Deps{})

	do(s, http.MethodPost, "/webhook", webhookBody("wamid.2", "show sales graph"))
	waitIdle(t, s)

	got := snd.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Here's your bar chart", got[0].caption)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got[0].image)
}

func TestWebhook_FailureStillSendsFallback(t *testing.T) {
	p := &fakePipeline{
		reply: assistant.TextReply("Sorry, I couldn't understand that."),
		err:   assistant.ErrClassificationParse,
	}
	s, snd := newTestServer(t, p, Deps{})

	do(s, http.MethodPost, "/webhook", webhookBody("wamid.3", "???"))
	waitIdle(t, s)

	require.Len(t, snd.all(), 1)
	assert.Equal(t, "Sorry, I couldn't understand that.", snd.all()[0].body)
}

func TestWebhook_RedeliveryIsHandledOnce(t *testing.T) {
	p := &fakePipeline{reply: assistant.TextReply("ok")}
	s, snd := newTestServer(t, p, Deps{Dedupe: store.NewMemoryStore(time.Minute, 100)})

	first := do(s, http.MethodPost, "/webhook", webhookBody("wamid.4", "hi"))
	second := do(s, http.MethodPost, "/webhook", webhookBody("wamid.4", "hi"))
	waitIdle(t, s)

	assert.JSONEq(t, `{"status": "received", "accepted": 1}`, first.Body.String())
	assert.JSONEq(t, `{"status": "received", "accepted": 0}`, second.Body.String())
	assert.Len(t, p.inbound(), 1)
	assert.Len(t, snd.all(), 1)
}

func TestWebhook_StatusUpdatesAndBadBodies(t *testing.T) {
	p := &fakePipeline{}
	s, _ := newTestServer(t, p, Deps{})

	rec := do(s, http.MethodPost, "/webhook", `{"entry": [{"changes": [{"value": {"statuses": [{"status": "read"}]}}]}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "received", "accepted": 0}`, rec.Body.String())

	rec = do(s, http.MethodPost, "/webhook", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "Invalid or missing JSON body"}`, rec.Body.String())

	waitIdle(t, s)
	assert.Empty(t, p.inbound())
}

func TestAPIMessages(t *testing.T) {
	p := &fakePipeline{reply: assistant.TextReply("No results.")}
	s, snd := newTestServer(t, p, Deps{})

	rec := do(s, http.MethodPost, "/api/messages", `{"phone": "15550001", "name": "Ada", "message": "show me today's sales"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, "text", resp.Type)
	assert.Equal(t, "No results.", resp.Content)
	assert.Empty(t, resp.Error)
	assert.Empty(t, snd.all(), "synchronous endpoint must not deliver")
}

func TestAPIMessages_Errors(t *testing.T) {
	p := &fakePipeline{reply: assistant.TextReply("Sorry"), err: assistant.ErrUnsafeQuery}
	s, _ := newTestServer(t, p, Deps{})

	rec := do(s, http.MethodPost, "/api/messages", `{"phone": "1", "message": "drop it"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp types.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UNSAFE_QUERY", resp.Error)
	assert.Equal(t, "Sorry", resp.Content)

	rec = do(s, http.MethodPost, "/api/messages", `{"phone": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(s, http.MethodPost, "/api/messages", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, Deps{Database: fakeDB{}})
	rec := do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())

	s, _ = newTestServer(t, &fakePipeline{}, Deps{Database: fakeDB{err: errors.New("connection refused")}})
	rec = do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status": "degraded", "database": "connection refused"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	p := &fakePipeline{reply: assistant.TextReply("ok")}
	s, _ := newTestServer(t, p, Deps{})
	do(s, http.MethodPost, "/webhook", webhookBody("wamid.metrics", "hi"))
	waitIdle(t, s)

	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bizbot_webhook_events_total")
}

func TestWebhook_PanicSendsFallbackAndKeepsServing(t *testing.T) {
	p := &panickyPipeline{fakePipeline{reply: assistant.TextReply("ok")}}
	s, snd := newTestServer(t, p, Deps{})

	do(s, http.MethodPost, "/webhook", webhookBody("wamid.panic", "boom"))
	waitIdle(t, s)
	do(s, http.MethodPost, "/webhook", webhookBody("wamid.after", "hi"))
	waitIdle(t, s)

	got := snd.all()
	require.Len(t, got, 2)
	assert.Equal(t, assistant.FallbackReply().Content, got[0].body)
	assert.Equal(t, "ok", got[1].body)
	assert.Len(t, p.inbound(), 1)
}

func TestAPIMessages_PanicIsReportedAsFailure(t *testing.T) {
	p := &panickyPipeline{}
	s, _ := newTestServer(t, p, Deps{})

	rec := do(s, http.MethodPost, "/api/messages", `{"phone": "1", "message": "boom"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp types.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, assistant.FallbackReply().Content, resp.Content)
	assert.Equal(t, "UNKNOWN_ERROR", resp.Error)
}
