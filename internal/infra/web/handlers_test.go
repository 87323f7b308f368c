//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/infra/adapters/ai"
	"research-gateway/internal/infra/jobstore"
	"research-gateway/internal/infra/render"
	"research-gateway/internal/usecase"
	"research-gateway/pkg/backoff"
)

// --- fakes ---

type failingChat struct{ name string }

func (f failingChat) Name() string { return f.name }
func (f failingChat) ListModels(context.Context) ([]string, error) {
	return []string{f.name + "-model"}, nil
}
func (f failingChat) CountTokens(context.Context, string, []adapter.Message) (int, error) {
	return 0, nil
}
func (f failingChat) Chat(context.Context, string, []adapter.Message) (string, error) {
	return "", errors.New(f.name + " is down")
}
func (f failingChat) ChatWithUsage(context.Context, string, []adapter.Message) (string, adapter.Usage, error) {
	return "", adapter.Usage{}, errors.New(f.name + " is down")
}

type chatOnly struct{ chat map[string]adapter.AIServiceAdapter }

func (c chatOnly) Chat(name string) (adapter.AIServiceAdapter, error) {
	if a, ok := c.chat[name]; ok {
		return a, nil
	}
	return nil, domain.ErrProviderNotConfigured
}
func (c chatOnly) HasChat() bool { return len(c.chat) > 0 }

var pilot = []model.Candidate{
	{Provider: "openai", Model: "gpt-4o"},
	{Provider: "anthropic", Model: "claude-sonnet-4-5"},
	{Provider: "gemini", Model: "gemini-2.5-flash"},
	{Provider: "compat", Model: "gpt-4o-mini"},
}

func newTestAPI(t *testing.T, chat map[string]adapter.AIServiceAdapter) http.Handler {
	t.Helper()
	log := zerolog.Nop()
	return newTestAPIWith(t, chat, nil, &log)
}

func newTestAPIWith(t *testing.T, chat map[string]adapter.AIServiceAdapter, models ModelLister, logger *zerolog.Logger) http.Handler {
	t.Helper()
	log := *logger
	research := usecase.NewResearchUseCase(jobstore.NewMemoryStore(), nil,
		usecase.ResearchConfig{SimulatedDelay: 20 * time.Millisecond}, &log)
	t.Cleanup(research.Close)

	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	generate := usecase.NewGenerateUseCase(chatOnly{chat: chat}, ai.NewStaticAdapter("placeholder"), usecase.GenerateConfig{
		DefaultVersion: "pilot",
		Versions:       map[string][]model.Candidate{"pilot": pilot},
		Retry:          backoff.Policy{MaxAttempts: 3, Sleep: noSleep},
	}, &log)

	md := render.NewMarkdown()
	pub := usecase.NewStreamPublisher(research, md, 5*time.Millisecond, time.Second, &log)
	return NewHandler(research, generate, pub, md, models, nil, &log).Routes(5 * time.Second)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	for _, k := range []string{"code", "message", "userAction", "provider", "timestamp"} {
		if _, ok := body.Error[k]; !ok {
			t.Fatalf("error body missing %q: %v", k, body.Error)
		}
	}
	return body.Error
}

// --- tests ---

func TestStartAndPollOfflineJob(t *testing.T) {
	h := newTestAPI(t, nil)

	rr := do(t, h, http.MethodPost, "/api/v1/research", `{"input":"test topic"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("start status = %d body=%s", rr.Code, rr.Body)
	}
	var started startResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &started)
	if started.JobID == "" || started.Status != model.JobStatusInProgress {
		t.Fatalf("start response = %+v", started)
	}
	if rr.Header().Get("X-Trace-Id") == "" {
		t.Fatal("trace id header missing")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rr = do(t, h, http.MethodGet, "/api/v1/research/status?jobId="+started.JobID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status code = %d", rr.Code)
		}
		var st statusResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &st)
		if st.Status == model.JobStatusCompleted {
			if len(st.Outputs) != 1 || !strings.Contains(st.Outputs[0].Text, "test topic") {
				t.Fatalf("outputs = %+v", st.Outputs)
			}
			if !strings.Contains(st.Outputs[0].HTML, "<strong>test topic</strong>") {
				t.Fatalf("html = %q", st.Outputs[0].HTML)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, last status %s", st.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartValidation(t *testing.T) {
	h := newTestAPI(t, nil)
	cases := map[string]string{
		"missing input":  `{}`,
		"blank input":    `{"input":"  "}`,
		"non-text input": `{"input":42}`,
		"malformed":      `{"input":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/research", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rr.Code)
			}
			if e := decodeError(t, rr); e["code"] != "BAD_REQUEST" {
				t.Fatalf("error = %v", e)
			}
		})
	}
}

func TestStatusErrors(t *testing.T) {
	h := newTestAPI(t, nil)

	rr := do(t, h, http.MethodGet, "/api/v1/research/status?jobId=nope", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("unknown id: %d %s", rr.Code, rr.Body)
	}
	rr = do(t, h, http.MethodGet, "/api/v1/research/status", "")
	if rr.Code != http.StatusBadRequest || decodeError(t, rr)["code"] != "BAD_REQUEST" {
		t.Fatalf("missing id: %d %s", rr.Code, rr.Body)
	}
}

func TestStreamUnknownJobIsAnEvent(t *testing.T) {
	h := newTestAPI(t, nil)
	rr := do(t, h, http.MethodGet, "/api/v1/research/stream?jobId=nope", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("stream must not fail at the HTTP level, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "event: error\ndata: ") || !strings.Contains(body, `"code":"NOT_FOUND"`) {
		t.Fatalf("body = %q", body)
	}
}

func TestStreamOfflineJobEndToEnd(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/research", "application/json", bytes.NewBufferString(`{"input":"test topic"}`))
	if err != nil {
		t.Fatal(err)
	}
	var started startResponse
	_ = json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/research/stream?jobId="+started.JobID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)

	iStatus := strings.Index(body, "event: status")
	iOutputs := strings.Index(body, "event: outputs")
	iDone := strings.Index(body, "event: done")
	if iStatus < 0 || iOutputs < iStatus || iDone < iOutputs {
		t.Fatalf("unexpected event order: %q", body)
	}
	if !strings.Contains(body, "test topic") || !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("body = %q", body)
	}
}

func TestGenerateAllCandidatesFail(t *testing.T) {
	chat := map[string]adapter.AIServiceAdapter{}
	for _, c := range pilot {
		chat[c.Provider] = failingChat{name: c.Provider}
	}
	h := newTestAPI(t, chat)

	rr := do(t, h, http.MethodPost, "/api/v1/generate", `{"prompt":"hello","version":"pilot"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rr.Code, rr.Body)
	}
	var res generateResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Content != "placeholder" || !res.WasFallback || res.Provider != ai.StaticProvider {
		t.Fatalf("response = %+v", res)
	}
	if res.Error == nil || res.Error.Provider != "compat" {
		t.Fatalf("failure detail = %+v", res.Error)
	}
}

func TestGenerateUnknownVersion(t *testing.T) {
	h := newTestAPI(t, nil)
	rr := do(t, h, http.MethodPost, "/api/v1/generate", `{"prompt":"hello","version":"v42"}`)
	if rr.Code != http.StatusBadRequest || decodeError(t, rr)["code"] != "BAD_REQUEST" {
		t.Fatalf("code = %d body=%s", rr.Code, rr.Body)
	}
}

func TestHealthAndModels(t *testing.T) {
	h := newTestAPI(t, nil)
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health = %d", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/api/v1/models", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"pilot"`) {
		t.Fatalf("models = %d %s", rr.Code, rr.Body)
	}
}

func TestRecoverWritesErrorEnvelope(t *testing.T) {
	log := zerolog.Nop()
	h := TraceID()(Recover(&log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })))
	rr := do(t, h, http.MethodGet, "/", "")
	if rr.Code != http.StatusInternalServerError || decodeError(t, rr)["code"] != "UNKNOWN_ERROR" {
		t.Fatalf("code = %d body=%s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"traceId":"`+rr.Header().Get("X-Trace-Id")+`"`) {
		t.Fatalf("trace id missing from body %s", rr.Body)
	}
}

func TestModelsListsProviderModels(t *testing.T) {
	multi := ai.NewMultiAIAdapter()
	multi.Register(failingChat{name: "openai"})
	multi.Register(failingChat{name: "gemini"})
	log := zerolog.Nop()
	h := newTestAPIWith(t, nil, multi, &log)

	rr := do(t, h, http.MethodGet, "/api/v1/models", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("models = %d %s", rr.Code, rr.Body)
	}
	var body struct {
		Available []string `json:"available"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	want := []string{"gemini/gemini-model", "openai/openai-model"}
	if strings.Join(body.Available, ",") != strings.Join(want, ",") {
		t.Fatalf("available = %v, want %v", body.Available, want)
	}
}

func TestStatusErrorIsLoggedWithJobAndTrace(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	h := newTestAPIWith(t, nil, nil, &log)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/research/status?jobId=job-404", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"traceId":"req-1"`) {
		t.Fatalf("body = %s", rr.Body)
	}

	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(line, &entry) != nil || entry["message"] != "request failed" {
			continue
		}
		found = true
		if entry["job_id"] != "job-404" || entry["trace_id"] != "req-1" {
			t.Fatalf("log fields = %v", entry)
		}
	}
	if !found {
		t.Fatalf("no request failure logged: %s", buf.String())
	}
}
