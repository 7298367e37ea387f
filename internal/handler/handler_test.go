package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"careerkit-go/internal/config"
	"careerkit-go/internal/model"
	"careerkit-go/internal/repository"
	"careerkit-go/internal/service"
	"careerkit-go/pkg/llm"
	"careerkit-go/pkg/relay"
	"careerkit-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLLM struct {
	mu       sync.Mutex
	text     string
	err      error
	messages []llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = messages
	return f.text, f.err
}

type testEnv struct {
	router *gin.Engine
	store  service.SavedResponseService
	llm    *fakeLLM
	token  string
}

// newTestEnv 组装一个完整的路由，工具面板通过 relayURL 调用中继；relayURL 为空时使用不可达地址。
func newTestEnv(t *testing.T, apiKey, relayURL string) *testEnv {
	t.Helper()
	if relayURL == "" {
		relayURL = "http://127.0.0.1:1"
	}
	store := service.NewSavedResponseService(
		repository.NewSavedResponseRepository(repository.NewMemoryKVRepository(), "savedResponses"), nil)
	store.Load(context.Background())

	fake := &fakeLLM{text: "model says hi"}
	jwtManager := token.NewJWTManager("test-secret", 1)
	tok, err := jwtManager.GenerateToken("student@example.com")
	if err != nil {
		t.Fatal(err)
	}
	llmCfg := config.LLMConfig{APIKey: apiKey, Generation: config.LLMGenerationConfig{Temperature: 0.6, MaxTokens: 300}}

	router := NewRouter(Services{
		Store:      store,
		Relay:      service.NewRelayService(llmCfg, fake),
		Tools:      service.NewToolService(relay.NewClient(relayURL), service.DefaultPanels()),
		Auth:       service.NewAuthService(repository.NewMemoryAuthRepository(), jwtManager, time.Minute),
		Search:     service.NewSearchService(store, nil),
		Export:     service.NewExportService(store, nil),
		JWTManager: jwtManager,
	})
	return &testEnv{router: router, store: store, llm: fake, token: tok}
}

func (e *testEnv) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func TestRelay_MissingPrompts(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	for _, body := range []string{`{}`, `{"systemPrompt":"s"}`, `{"userPrompt":"u"}`, `not json`} {
		w := env.do(http.MethodPost, "/api/ai", body, false)
		if w.Code != http.StatusBadRequest || w.Body.String() != `{"error":"Missing prompts"}` {
			t.Errorf("body %q: status = %d, resp = %s", body, w.Code, w.Body.String())
		}
	}
}

func TestRelay_NotConfigured(t *testing.T) {
	for _, key := range []string{"", config.PlaceholderAPIKey} {
		env := newTestEnv(t, key, "")
		w := env.do(http.MethodPost, "/api/ai", `{"systemPrompt":"s","userPrompt":"u"}`, false)
		var resp map[string]string
		decode(t, w, &resp)
		if w.Code != http.StatusInternalServerError || resp["error"] != "HF API key not configured" ||
			resp["details"] != "Set HF_API_KEY in your environment before running the server." {
			t.Errorf("key %q: status = %d, resp = %v", key, w.Code, resp)
		}
	}
}

func TestRelay_SuccessAndCORS(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	w := env.do(http.MethodPost, "/api/ai", `{"systemPrompt":"sys","userPrompt":"usr"}`, false)
	if w.Code != http.StatusOK || w.Body.String() != `{"text":"model says hi"}` {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if len(env.llm.messages) != 2 || env.llm.messages[0].Content != "sys" || env.llm.messages[1].Content != "usr" {
		t.Errorf("messages = %+v", env.llm.messages)
	}

	pre := env.do(http.MethodOptions, "/api/ai", "", false)
	if pre.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", pre.Code)
	}
}

func TestRelay_EmptyContent(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.llm.text = ""
	w := env.do(http.MethodPost, "/api/ai", `{"systemPrompt":"s","userPrompt":"u"}`, false)
	if w.Body.String() != `{"text":"HF response had no message content."}` {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRelay_UpstreamErrorMirrored(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.llm.err = &llm.UpstreamError{StatusCode: http.StatusTooManyRequests, Body: json.RawMessage(`{"error":"rate limited"}`)}
	w := env.do(http.MethodPost, "/api/ai", `{"systemPrompt":"s","userPrompt":"u"}`, false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != `{"details":{"error":"rate limited"},"error":"HF error 429"}` {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRelay_TransportError(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.llm.err = context.DeadlineExceeded
	w := env.do(http.MethodPost, "/api/ai", `{"systemPrompt":"s","userPrompt":"u"}`, false)
	if w.Code != http.StatusInternalServerError || w.Body.String() != `{"error":"context deadline exceeded"}` {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestTools_ThroughRelay(t *testing.T) {
	var target http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { target.ServeHTTP(w, r) }))
	defer srv.Close()
	env := newTestEnv(t, "hf_key", srv.URL)
	target = env.router

	w := env.do(http.MethodPost, "/api/v1/tools/resume", `{"input":"Led a team"}`, false)
	var resp envelope
	decode(t, w, &resp)
	var data struct {
		Output string `json:"output"`
	}
	_ = json.Unmarshal(resp.Data, &data)
	if w.Code != http.StatusOK || data.Output != "model says hi" {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := env.llm.messages[1].Content; got != "Resume bullet:\nLed a team" {
		t.Errorf("user prompt = %q", got)
	}

	// 面试面板的空输入使用默认职位
	w = env.do(http.MethodPost, "/api/v1/tools/interview", `{"input":""}`, false)
	decode(t, w, &resp)
	_ = json.Unmarshal(resp.Data, &data)
	if env.llm.messages[1].Content != "Target role: entry level opportunity" {
		t.Errorf("interview prompt = %q", env.llm.messages[1].Content)
	}
	env.llm.messages = nil
	if w := env.do(http.MethodPost, "/api/v1/tools/interview", "", false); w.Code != http.StatusOK {
		t.Errorf("empty body status = %d", w.Code)
	}
	if len(env.llm.messages) != 2 || env.llm.messages[1].Content != "Target role: entry level opportunity" {
		t.Errorf("empty body prompt = %+v", env.llm.messages)
	}
	env.llm.err = &llm.UpstreamError{StatusCode: 503, Body: json.RawMessage(`{}`)}
	w = env.do(http.MethodPost, "/api/v1/tools/advisor", `{"input":"Nursing"}`, false)
	decode(t, w, &resp)
	_ = json.Unmarshal(resp.Data, &data)
	if data.Output != relay.MsgBackendError {
		t.Errorf("output = %q, want %q", data.Output, relay.MsgBackendError)
	}
}

func TestTools_Validation(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")

	w := env.do(http.MethodPost, "/api/v1/tools/unknown", `{"input":"x"}`, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown tool status = %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/v1/tools/resume", `{"input":"   "}`, false)
	var resp envelope
	decode(t, w, &resp)
	if w.Code != http.StatusBadRequest || resp.Message != "Paste a resume bullet first." {
		t.Errorf("status = %d, resp = %+v", w.Code, resp)
	}

	w = env.do(http.MethodPost, "/api/v1/tools/resume", `{"input":"x"}`, false)
	decode(t, w, &resp)
	var data struct {
		Output string `json:"output"`
	}
	_ = json.Unmarshal(resp.Data, &data)
	if data.Output != relay.MsgUnreachable {
		t.Errorf("output = %q, want %q", data.Output, relay.MsgUnreachable)
	}

	// 请求体损坏时不运行面板
	w = env.do(http.MethodPost, "/api/v1/tools/interview", `{"input":`, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/v1/tools", "", false)
	var panels struct {
		Data []service.PanelState `json:"data"`
	}
	decode(t, w, &panels)
	if len(panels.Data) != 3 || panels.Data[0].Busy {
		t.Errorf("panels = %+v", panels.Data)
	}
}

func TestSaved_RequiresSession(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	if w := env.do(http.MethodGet, "/api/v1/saved", "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSaved_CreateListDelete(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")

	w := env.do(http.MethodPost, "/api/v1/saved", `{"tool":"resume","input":"Led team","output":"Great bullet!"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		Data struct {
			Saved bool                `json:"saved"`
			Item  model.SavedResponse `json:"item"`
		} `json:"data"`
	}
	decode(t, w, &created)
	if !created.Data.Saved || created.Data.Item.Output != "Great bullet!" {
		t.Fatalf("created = %+v", created.Data)
	}

	// 空输出不保存
	w = env.do(http.MethodPost, "/api/v1/saved", `{"tool":"advisor","input":"x","output":"  "}`, true)
	decode(t, w, &created)
	if created.Data.Saved {
		t.Error("blank output was saved")
	}

	if w := env.do(http.MethodPost, "/api/v1/saved", `{"tool":"poetry","output":"x"}`, true); w.Code != http.StatusBadRequest {
		t.Errorf("unknown tool status = %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/v1/saved", "", true)
	var list struct {
		Data struct {
			Items  []model.SavedResponse `json:"items"`
			Status service.StoreStatus   `json:"status"`
		} `json:"data"`
	}
	decode(t, w, &list)
	if len(list.Data.Items) != 1 || list.Data.Status.Count != 1 || !list.Data.Status.Persisted {
		t.Fatalf("list = %+v", list.Data)
	}

	id := list.Data.Items[0].ID
	if w := env.do(http.MethodDelete, "/api/v1/saved/abc", "", true); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
	w = env.do(http.MethodDelete, "/api/v1/saved/"+jsonInt(id), "", true)
	if w.Code != http.StatusOK || len(env.store.List()) != 0 {
		t.Fatalf("delete status = %d, remaining = %d", w.Code, len(env.store.List()))
	}
	// 删除不存在的 ID 不报错
	if w := env.do(http.MethodDelete, "/api/v1/saved/"+jsonInt(id), "", true); w.Code != http.StatusOK {
		t.Errorf("second delete status = %d", w.Code)
	}
}

func TestSaved_SearchAndExport(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.store.Add(context.Background(), model.ToolAdvisor, "Nursing", "Community college pathway")
	env.store.Add(context.Background(), model.ToolResume, "Led team", "Great bullet!")

	w := env.do(http.MethodGet, "/api/v1/saved/search?q=pathway", "", true)
	var res struct {
		Data []model.SavedResponse `json:"data"`
	}
	decode(t, w, &res)
	if len(res.Data) != 1 || res.Data[0].Tool != model.ToolAdvisor {
		t.Fatalf("search = %+v", res.Data)
	}

	if w := env.do(http.MethodPost, "/api/v1/saved/export", "", true); w.Code != http.StatusServiceUnavailable {
		t.Errorf("export status = %d", w.Code)
	}
}

func TestAuth_Flow(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")

	w := env.do(http.MethodPost, "/api/v1/auth/login", `{"email":"","password":"x"}`, false)
	var resp envelope
	decode(t, w, &resp)
	if w.Code != http.StatusBadRequest || resp.Message != service.ErrMissingCredentials.Error() {
		t.Fatalf("status = %d, resp = %+v", w.Code, resp)
	}

	w = env.do(http.MethodPost, "/api/v1/auth/login", `{"email":"a@example.com","password":"x"}`, false)
	var login struct {
		Data struct {
			Challenge string `json:"challenge"`
		} `json:"data"`
	}
	decode(t, w, &login)
	challenge := login.Data.Challenge
	if challenge == "" {
		t.Fatalf("no challenge: %s", w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/v1/auth/verify", `{"challenge":"`+challenge+`","code":"123456"}`, false)
	decode(t, w, &resp)
	if resp.Message != "Generate a code first." {
		t.Errorf("verify before code = %+v", resp)
	}

	w = env.do(http.MethodPost, "/api/v1/auth/code", `{"challenge":"`+challenge+`"}`, false)
	var sent struct {
		Message string `json:"message"`
		Data    struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	decode(t, w, &sent)
	if len(sent.Data.Code) != 6 || sent.Message != "Demo code (for prototype only): "+sent.Data.Code {
		t.Fatalf("sent = %+v", sent)
	}

	wrong := "000000"
	if sent.Data.Code == wrong {
		wrong = "111111"
	}
	w = env.do(http.MethodPost, "/api/v1/auth/verify", `{"challenge":"`+challenge+`","code":"`+wrong+`"}`, false)
	decode(t, w, &resp)
	if w.Code != http.StatusUnauthorized || resp.Message != "Incorrect code." {
		t.Errorf("wrong code: status = %d, resp = %+v", w.Code, resp)
	}

	w = env.do(http.MethodPost, "/api/v1/auth/verify", `{"challenge":"`+challenge+`","code":"`+sent.Data.Code+`"}`, false)
	var verified struct {
		Message string `json:"message"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	decode(t, w, &verified)
	if w.Code != http.StatusOK || verified.Message != "Code verified." || verified.Data.Token == "" {
		t.Fatalf("verify: status = %d, body = %s", w.Code, w.Body.String())
	}

	env.token = verified.Data.Token
	if w := env.do(http.MethodGet, "/api/v1/saved", "", true); w.Code != http.StatusOK {
		t.Errorf("issued token rejected: %d", w.Code)
	}
}

func TestPage_IndexOmitsSavedList(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.store.Add(context.Background(), model.ToolResume, "Led team", "Great bullet!")

	w := env.do(http.MethodGet, "/", "", false)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("status = %d, content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="saved-list"`) {
		t.Error("page has no saved-list container")
	}
	if strings.Contains(body, "Great bullet!") {
		t.Error("index page leaks saved responses without a session")
	}
}

func TestPage_SavedRequiresSession(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	env.store.Add(context.Background(), model.ToolResume, "<b>in</b>", "Great bullet!")

	w := env.do(http.MethodGet, "/saved", "", false)
	if w.Code != http.StatusUnauthorized || strings.Contains(w.Body.String(), "Great bullet!") {
		t.Fatalf("no token: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/saved", "", true)
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("status = %d, content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "Great bullet!") || strings.Contains(body, "<b>in</b>") {
		t.Error("page does not contain the escaped saved list")
	}

	w = env.do(http.MethodGet, "/saved?token="+env.token, "", false)
	if w.Code != http.StatusOK {
		t.Errorf("query token: status = %d", w.Code)
	}
}

func TestLive_StreamsRerenders(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/saved?token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(first), "No saved responses yet.") {
		t.Fatalf("initial fragment = %q", first)
	}

	env.store.Add(context.Background(), model.ToolInterview, "PM", "1. Tell me about yourself")
	_, next, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(next), "1. Tell me about yourself") {
		t.Fatalf("re-render = %q", next)
	}
}

func TestLive_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, "hf_key", "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/saved", nil)
	if err == nil {
		t.Fatal("dial succeeded without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %v", resp)
	}
}

func TestOfferLatestKeepsNewest(t *testing.T) {
	ch := make(chan string, 1)
	offerLatest(ch, "a")
	offerLatest(ch, "b")
	if got := <-ch; got != "b" {
		t.Fatalf("got %q, want b", got)
	}
}

func jsonInt(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
