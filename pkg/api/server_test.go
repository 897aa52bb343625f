package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/debate"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/retriever"
	"github.com/parley-ai/parley/pkg/services"
	"github.com/parley-ai/parley/pkg/vectorstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testVerdictJSON = `{
	"verdict": "VERIFIED",
	"confidence_pct": 80,
	"summary": "Supported by the evidence.",
	"key_evidence": [],
	"forensic_dossier": {"entities": []},
	"bias_signals": [],
	"recommendation": "Accept the claim.",
	"contradictions": []
}`

// mockClient streams a fixed text and answers every Call with the scripted
// reply.
type mockClient struct {
	id       string
	callText string

	mu    sync.Mutex
	calls int
}

func (m *mockClient) ID() string    { return m.id }
func (m *mockClient) Healthy() bool { return true }

func (m *mockClient) Call(context.Context, []llm.Message, llm.Params) (*llm.CompletionResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return &llm.CompletionResult{Text: m.callText, ProviderID: m.id}, nil
}

func (m *mockClient) Stream(context.Context, []llm.Message, llm.Params) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 8)
	go func() {
		defer close(ch)
		for _, w := range []string{"a ", "reasoned ", "argument"} {
			ch <- llm.Chunk{DeltaText: w}
		}
		ch <- llm.Chunk{Done: true, FinishReason: "stop"}
	}()
	return ch, nil
}

type fakeOCR struct{ text string }

func (f *fakeOCR) Recognize(context.Context, []byte, string) (string, error) { return f.text, nil }

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	prompts, err := config.LoadPrompts("")
	require.NoError(t, err)

	client := &mockClient{id: "mock", callText: testVerdictJSON}
	gw := llm.NewGateway([]llm.Client{client}, llm.GatewayOptions{})

	store := vectorstore.NewMemory(vectorstore.NewHashingEmbedder(64))
	rt := retriever.New(store, retriever.Options{})
	mem := memory.New(rt, store, nil, nil, nil, memory.Options{})
	registry := debate.NewRegistry()
	params := llm.Params{}

	return NewServer(Deps{
		Gateway:      gw,
		Orchestrator: debate.New(gw, mem, nil, prompts, registry, debate.Options{}),
		Registry:     registry,
		Analysis:     services.NewAnalysisService(gw, mem, prompts, params),
		V2:           services.NewV2Service(gw, nil, prompts, params, time.Minute),
		TextAction:   services.NewTextActionService(gw, prompts, params),
		Headlines:    services.NewHeadlinesService(1),
		Chats:        chatstore.NewMemory(),
		Memory:       mem,
		Vectors:      store,
		OCR:          &fakeOCR{text: "extracted text"},
	}, Options{APIKey: apiKey})
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAPIKeyMiddleware(t *testing.T) {
	router := newTestServer(t, "secret").Router()

	w := postJSON(t, router, "/text_action", TextActionRequest{Action: "summarize", Text: "t"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "auth_error", body.Code)
	assert.NotEmpty(t, body.RequestID)

	w = postJSON(t, router, "/text_action", TextActionRequest{Action: "summarize", Text: "t"},
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, router, "/text_action", TextActionRequest{Action: "summarize", Text: "t"},
		map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/memory/consistency/check",
		ConsistencyCheckRequest{Role: "proponent", Statement: "s"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, router, "/memory/role/history", RoleHistoryRequest{Role: "proponent"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func postRaw(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeTopicEndpoint(t *testing.T) {
	router := newTestServer(t, "").Router()

	w := postJSON(t, router, "/analyze_topic", AnalyzeTopicRequest{Topic: "is the sky blue", SessionID: "s1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res AnalyzeTopicResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Analysis)
	assert.Equal(t, "mock", res.Meta.Provider)
	assert.Equal(t, "s1", res.SessionID)
}

func TestAnalyzeTopicValidation(t *testing.T) {
	router := newTestServer(t, "").Router()
	w := postJSON(t, router, "/analyze_topic", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebateNonStreaming(t *testing.T) {
	router := newTestServer(t, "").Router()

	stream := false
	w := postJSON(t, router, "/rag/debate", DebateRequest{Topic: "claim under test", Stream: &stream}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res DebateTraceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.DebateStatusCompleted, res.Status)
	assert.NotEmpty(t, res.DebateID)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, models.VerdictVerified, res.Verdict.Verdict)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, "metadata", res.Events[0].Name)
	assert.Equal(t, "end", res.Events[len(res.Events)-1].Name)
	for i, ev := range res.Events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	require.Len(t, res.Turns, 3)
}

func TestDebateAcceptsClaimField(t *testing.T) {
	router := newTestServer(t, "").Router()

	w := postRaw(t, router, "/rag/debate",
		`{"claim": "the moon landing was staged", "stream": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res DebateTraceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.DebateStatusCompleted, res.Status)
	require.NotNil(t, res.Verdict)
}

func TestDebateRequiresTopicOrClaim(t *testing.T) {
	router := newTestServer(t, "").Router()

	w := postRaw(t, router, "/rag/debate", `{"stream": false}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "client_error", body.Code)
}

func TestDebateSSEStreaming(t *testing.T) {
	router := newTestServer(t, "").Router()

	w := postJSON(t, router, "/rag/debate", DebateRequest{Topic: "claim under test"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: metadata\n")
	assert.Contains(t, body, "event: start_role\n")
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, "event: final_verdict\n")
	assert.True(t, strings.Contains(body, "event: end\ndata: "))

	// Every frame is event/data pair terminated by a blank line.
	for _, frame := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		if strings.HasPrefix(frame, ":") {
			continue
		}
		assert.True(t, strings.HasPrefix(frame, "event: "), "frame %q", frame)
		assert.Contains(t, frame, "\ndata: ")
	}
}

func TestChatEndpoints(t *testing.T) {
	router := newTestServer(t, "").Router()

	w := postJSON(t, router, "/api/chats", models.CreateChatRequest{SessionID: "s1", Title: "first"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var chat models.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chat))
	require.NotEmpty(t, chat.ID)

	w = postJSON(t, router, "/api/chats/"+chat.ID+"/messages", models.AppendChatMessageRequest{
		Role: "assistant", Text: "<div>x</div>",
		Metadata: map[string]any{"is_html": true, "is_v2_dashboard": true},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/"+chat.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, true, got.Messages[0].Metadata["is_html"])
	assert.Equal(t, true, got.Messages[0].Metadata["is_v2_dashboard"])

	req = httptest.NewRequest(http.MethodGet, "/api/chats?session_id=s1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/chats/"+chat.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chats/"+chat.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
}

func TestClearChats(t *testing.T) {
	router := newTestServer(t, "").Router()

	for i := 0; i < 3; i++ {
		w := postJSON(t, router, "/api/chats", models.CreateChatRequest{SessionID: "wipe-me", Title: fmt.Sprint(i)}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := postJSON(t, router, "/api/chats/clear", ClearChatsRequest{SessionID: "wipe-me"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": 3}`, w.Body.String())
}

func TestHeadlinesEndpoint(t *testing.T) {
	router := newTestServer(t, "").Router()

	req := httptest.NewRequest(http.MethodGet, "/api/game/headlines", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var round services.HeadlinesRound
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &round))
	require.Len(t, round.Items, 4)
	assert.Equal(t, "satire", round.Items[round.AnswerIndex].Source)
}

func TestMemoryEndpoints(t *testing.T) {
	s := newTestServer(t, "")
	router := s.Router()

	// Seed role statements through the memory manager.
	_, err := s.memory.PersistTurn(context.Background(), "d1", models.RoleProponent,
		"solar is cheaper than nuclear", "s1", "energy costs")
	require.NoError(t, err)

	w := postJSON(t, router, "/memory/role/history", RoleHistoryRequest{Role: "proponent", SessionID: "s1", Topic: "energy"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history RoleHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)

	w = postJSON(t, router, "/memory/role/reversal", RoleReversalRequest{
		PreviousRole: "proponent", CurrentRole: "reversed_opponent", CurrentTask: "energy costs", SessionID: "s1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bundle memory.ReversalBundle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	assert.Equal(t, 1, bundle.PreviousArgumentsCount)
	assert.Contains(t, bundle.Context, "solar is cheaper")

	w = postJSON(t, router, "/memory/consistency/check", ConsistencyCheckRequest{
		Role: "proponent", Statement: "nuclear is cheaper than solar", SessionID: "s1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var check memory.ConsistencyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.HasInconsistencies)

	// "new_statement" is an accepted alias for "statement".
	w = postRaw(t, router, "/memory/consistency/check",
		`{"role": "proponent", "new_statement": "nuclear is cheaper than solar", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	check = memory.ConsistencyResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.HasInconsistencies)

	w = postRaw(t, router, "/memory/consistency/check", `{"role": "proponent"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOCRUpload(t *testing.T) {
	router := newTestServer(t, "").Router()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "scan.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr_upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var res OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "extracted text", res.Text)
}

func TestTranscribeUnavailable(t *testing.T) {
	router := newTestServer(t, "").Router()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("riff"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "provider_unavailable", body.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, "").Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var res HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.VectorStore)
	assert.True(t, res.Providers)
	assert.Zero(t, res.ActiveDebates)
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestServer(t, "").Router()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
