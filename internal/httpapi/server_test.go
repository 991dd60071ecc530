package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/config"
	"github.com/cashium/finchat/internal/i18n"
	"github.com/cashium/finchat/internal/observability"
	"github.com/cashium/finchat/internal/pipeline"
)

var (
	testMetrics = observability.NewMetrics("finchat_httpapi_test")
	testWindow  = observability.NewStageWindow(16)
)

type stubProcessor struct {
	result pipeline.Result
	err    error
	stages []string
	last   pipeline.TurnRequest
}

func (s *stubProcessor) ProcessTurn(_ context.Context, req pipeline.TurnRequest) (pipeline.Result, error) {
	s.last = req
	for _, stage := range s.stages {
		if req.Notify != nil {
			req.Notify(stage)
		}
	}
	return s.result, s.err
}

func newTestServer(t *testing.T, proc TurnProcessor, store chat.Store) *Server {
	t.Helper()
	if store == nil {
		store = chat.NewInMemoryStore()
	}
	cfg := config.Config{AllowAnyOrigin: true}
	return New(cfg, slog.Default(), proc, store, testMetrics, testWindow)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMessageHappyPath(t *testing.T) {
	proc := &stubProcessor{result: pipeline.Result{
		ChatID:  "chat-1",
		Outcome: pipeline.OutcomeAnswered,
		Blocks: []chat.Block{
			chat.MarkdownBlock("Encontré ofertas."),
			chat.OffersBlock([]int64{2, 1}),
		},
	}}
	srv := newTestServer(t, proc, nil)

	rec := postJSON(t, srv.Router(), "/api/ai/message?lang=es-mx", turnBody{
		Message: "Necesito un préstamo de 10000 a 12 meses",
		Params:  turnParams{ClientID: "c1", Country: 2, Provider: 373},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var envelope answerEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !envelope.Success || envelope.ChatID != "chat-1" || len(envelope.Answer) != 2 {
		t.Fatalf("envelope = %+v", envelope)
	}
	if proc.last.LangCode != "es-mx" || proc.last.CountryID != 2 {
		t.Fatalf("turn request not threaded: %+v", proc.last)
	}
}

func TestMessageValidation(t *testing.T) {
	proc := &stubProcessor{}
	srv := newTestServer(t, proc, nil)
	router := srv.Router()

	cases := []struct {
		name string
		path string
		body turnBody
		want string
	}{
		{
			"missing country", "/api/ai/message",
			turnBody{Message: "hola", Params: turnParams{ClientID: "c"}},
			i18n.Translate(i18n.KeyEmptyCountry, i18n.Default),
		},
		{
			"empty message", "/api/ai/message",
			turnBody{Message: "  ", Params: turnParams{ClientID: "c", Country: 2}},
			i18n.Translate(i18n.KeyEmptyMessage, i18n.SpanishMexico),
		},
		{
			"unsupported language", "/api/ai/message?lang=fr",
			turnBody{Message: "bonjour", Params: turnParams{ClientID: "c", Country: 2}},
			i18n.Translate(i18n.KeyUnsupportedLanguage, i18n.SpanishMexico),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var envelope answerEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			if envelope.Success || len(envelope.Answer) != 1 || envelope.Answer[0].Text != tc.want {
				t.Fatalf("envelope = %+v, want notice %q", envelope, tc.want)
			}
		})
	}
	if proc.last.Message != "" {
		t.Fatalf("validation failure reached the pipeline: %+v", proc.last)
	}
}

func TestBuildTurnRequestOkFlag(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{}, nil)

	// A valid body must be accepted regardless of which notice key the
	// zero value of the key type happens to be.
	r := httptest.NewRequest(http.MethodPost, "/api/ai/message", nil)
	req, lang, _, _, ok := srv.buildTurnRequest(r, turnBody{
		Message: "hola", Params: turnParams{ClientID: "c", Country: 2},
	})
	if !ok {
		t.Fatalf("valid body rejected")
	}
	if req.CountryID != 2 || lang != i18n.SpanishMexico {
		t.Fatalf("req = %+v, lang = %v", req, lang)
	}

	_, _, status, key, ok := srv.buildTurnRequest(r, turnBody{Message: "hola"})
	if ok || status != http.StatusBadRequest || key != i18n.KeyEmptyCountry {
		t.Fatalf("missing country: ok=%v status=%d key=%v", ok, status, key)
	}
}

func TestMalformedBodyNoticeUsesQueryLanguage(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/message?lang=pl", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var envelope answerEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	want := i18n.Translate(i18n.KeyEmptyMessage, i18n.Polish)
	if len(envelope.Answer) != 1 || envelope.Answer[0].Text != want {
		t.Fatalf("notice = %+v, want %q", envelope.Answer, want)
	}
}

func TestPerfResetClearsWindow(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{}, nil)
	router := srv.Router()
	testWindow.Observe("classify", 120*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/v1/perf/reset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/perf/latency", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var snap observability.StageSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Stages) != 0 {
		t.Fatalf("stages after reset = %+v", snap.Stages)
	}
}

func TestMessageServerErrorStatus(t *testing.T) {
	proc := &stubProcessor{result: pipeline.Result{
		ChatID:      "chat-1",
		Outcome:     pipeline.OutcomeFailed,
		Blocks:      []chat.Block{chat.NotificationBlock("error")},
		ServerError: true,
	}}
	srv := newTestServer(t, proc, nil)

	rec := postJSON(t, srv.Router(), "/api/ai/message", turnBody{
		Message: "hola", Params: turnParams{ClientID: "c", Country: 2},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for recovery results", rec.Code)
	}
}

func TestHistoryExcludesMemorySnapshots(t *testing.T) {
	store := chat.NewInMemoryStore()
	conv, _ := store.Create(context.Background(), chat.Chat{
		ClientID: "c1",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Blocks: []chat.Block{chat.TextBlock("hola")}},
			{Role: chat.RoleSystem, Blocks: []chat.Block{chat.MemoryBlock(chat.MemorySnapshot{LastRequest: "x"})}},
			{Role: chat.RoleAssistant, Blocks: []chat.Block{chat.MarkdownBlock("hola!")}},
		},
	})
	srv := newTestServer(t, &stubProcessor{}, store)

	rec := postJSON(t, srv.Router(), "/api/ai/history", chatRef{ChatID: conv.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out struct {
		Success  bool             `json:"success"`
		ChatID   string           `json:"chat_id"`
		Messages []historyMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("history has %d messages, want 2 visible", len(out.Messages))
	}
	for _, m := range out.Messages {
		for _, b := range m.Data {
			if b.Kind == chat.BlockInternalMemory {
				t.Fatalf("memory snapshot leaked into history")
			}
		}
	}
}

func TestHistoryNotFound(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{}, nil)
	rec := postJSON(t, srv.Router(), "/api/ai/history", chatRef{ChatID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReportAndPublic(t *testing.T) {
	store := chat.NewInMemoryStore()
	conv, _ := store.Create(context.Background(), chat.Chat{ClientID: "c1"})
	srv := newTestServer(t, &stubProcessor{}, store)
	router := srv.Router()

	rec := postJSON(t, router, "/api/ai/report", map[string]any{
		"params":       chatRef{ChatID: conv.ID},
		"answer_index": 3,
		"message":      "wrong offer",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/ai/public", map[string]any{
		"params": chatRef{ChatID: conv.ID},
		"public": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("public status = %d", rec.Code)
	}

	got, _ := store.GetByID(context.Background(), conv.ID)
	if len(got.Reports) != 1 || got.Reports[0].Message != "wrong offer" || !got.Public {
		t.Fatalf("chat state = %+v", got)
	}
}

func TestChatsListsByClient(t *testing.T) {
	store := chat.NewInMemoryStore()
	_, _ = store.Create(context.Background(), chat.Chat{
		ClientID: "c1",
		Messages: []chat.Message{{Role: chat.RoleUser, Blocks: []chat.Block{chat.TextBlock("Necesito un préstamo")}}},
	})
	_, _ = store.Create(context.Background(), chat.Chat{ClientID: "c2"})
	srv := newTestServer(t, &stubProcessor{}, store)

	rec := postJSON(t, srv.Router(), "/api/ai/chats", chatRef{ClientID: "c1"})
	var out struct {
		Success bool `json:"success"`
		Chats   []struct {
			ChatID string `json:"chat_id"`
			Name   string `json:"name"`
		} `json:"chats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode chats: %v", err)
	}
	if len(out.Chats) != 1 || !strings.Contains(out.Chats[0].Name, "préstamo") {
		t.Fatalf("chats = %+v", out.Chats)
	}
}

func TestCountriesEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/ai/countries", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var out struct {
		Success   bool `json:"success"`
		Countries []struct {
			Code string `json:"code"`
			ID   int    `json:"id"`
		} `json:"countries"`
		Languages []string `json:"languages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode countries: %v", err)
	}
	if len(out.Countries) != 5 || len(out.Languages) != 7 {
		t.Fatalf("countries = %d, languages = %d", len(out.Countries), len(out.Languages))
	}
}

func TestWSAndHTTPEnvelopeParity(t *testing.T) {
	proc := &stubProcessor{
		result: pipeline.Result{
			ChatID:  "chat-ws",
			Outcome: pipeline.OutcomeAnswered,
			Blocks:  []chat.Block{chat.MarkdownBlock("hola"), chat.OffersBlock([]int64{1})},
		},
		stages: []string{"classify", "summarize", "rank", "narrative", "persist"},
	}
	srv := newTestServer(t, proc, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postJSON(t, srv.Router(), "/api/ai/message", turnBody{
		Message: "hola", Params: turnParams{ClientID: "c", Country: 2},
	})
	var httpEnvelope answerEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &httpEnvelope); err != nil {
		t.Fatalf("decode http envelope: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ai/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsTurnBody{turnBody: turnBody{
		Message: "hola", Params: turnParams{ClientID: "c", Country: 2},
	}}); err != nil {
		t.Fatalf("write turn: %v", err)
	}

	var stages []string
	var wsFinal answerEnvelope
	for {
		var raw map[string]json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read ws event: %v", err)
		}
		var typ string
		_ = json.Unmarshal(raw["type"], &typ)
		if typ == "stage" {
			var stage string
			_ = json.Unmarshal(raw["stage"], &stage)
			stages = append(stages, stage)
			continue
		}
		payload, _ := json.Marshal(raw)
		if err := json.Unmarshal(payload, &wsFinal); err != nil {
			t.Fatalf("decode ws answer: %v", err)
		}
		break
	}

	if len(stages) != 5 {
		t.Fatalf("stage events = %v, want 5", stages)
	}
	if wsFinal.Success != httpEnvelope.Success || wsFinal.ChatID != httpEnvelope.ChatID ||
		len(wsFinal.Answer) != len(httpEnvelope.Answer) {
		t.Fatalf("ws envelope %+v differs from http envelope %+v", wsFinal, httpEnvelope)
	}
}
