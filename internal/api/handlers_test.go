package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"geminichat/internal/service/ai"
	"geminichat/internal/service/assistant"
	"geminichat/internal/service/upload"
	"geminichat/internal/store"
)

type stubGenerator struct {
	mu      sync.Mutex
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt, model string) (*ai.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return &ai.Generation{Text: "hi", TokensUsed: 1, ResponseTimeMs: 50}, nil
}

type stubTitler struct{}

func (stubTitler) GenerateTitle(ctx context.Context, firstMessage, model string) (string, error) {
	return "Friendly Greeting", nil
}

type stubComparer struct{}

func (stubComparer) Compare(ctx context.Context, message string, models []string) []ai.CompareResult {
	out := make([]ai.CompareResult, len(models))
	for i, m := range models {
		if m == "" {
			m = "gemini-1.5-flash"
		}
		if m == "broken-model" {
			out[i] = ai.CompareResult{Model: m, Error: ai.CompareFailedMessage}
			continue
		}
		out[i] = ai.CompareResult{Model: m, Response: "echo: " + message, ResponseTime: 5, Tokens: 2}
	}
	return out
}

type testServer struct {
	router    *gin.Engine
	generator *stubGenerator
	uploads   *upload.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gen := &stubGenerator{}
	asst := assistant.NewService(store.New(), gen, assistant.WithTitleGenerator(stubTitler{}))
	uploads, err := upload.NewService(context.Background(), t.TempDir(), 1<<10, nil)
	if err != nil {
		t.Fatalf("upload service: %v", err)
	}
	handler := NewHandler(asst, stubComparer{}, uploads, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, generator: gen, uploads: uploads}
}

type conversationBody struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageBody struct {
	ID           string     `json:"id"`
	Role         string     `json:"role"`
	Content      string     `json:"content"`
	Tokens       *int       `json:"tokens"`
	IsBookmarked bool       `json:"isBookmarked"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

type sendBody struct {
	UserMessage      *messageBody `json:"userMessage"`
	AssistantMessage *messageBody `json:"assistantMessage"`
	Error            string       `json:"error"`
	Title            string       `json:"title"`
}

func TestHandlersEndToEndFlow(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("session-a")

	conv := createConversation(t, srv.router, session, "New Conversation", "gemini-1.5-flash")
	if conv.SessionID != "session-a" {
		t.Fatalf("conversation bound to %q", conv.SessionID)
	}

	sendResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": "hello"}, session)
	assertStatus(t, sendResp, http.StatusCreated)
	var sent sendBody
	decodeJSON(t, sendResp.Body.Bytes(), &sent)
	if sent.UserMessage == nil || sent.UserMessage.Content != "hello" || sent.UserMessage.Role != "user" {
		t.Fatalf("unexpected user message %+v", sent.UserMessage)
	}
	if sent.AssistantMessage == nil || sent.AssistantMessage.Content != "hi" {
		t.Fatalf("unexpected assistant message %+v", sent.AssistantMessage)
	}
	if sent.AssistantMessage.Tokens == nil || *sent.AssistantMessage.Tokens != 1 {
		t.Fatalf("expected assistant tokens 1")
	}
	if sent.Error != "" {
		t.Fatalf("unexpected error %q", sent.Error)
	}

	getResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/"+conv.ID, nil, session)
	assertStatus(t, getResp, http.StatusOK)
	var updated conversationBody
	decodeJSON(t, getResp.Body.Bytes(), &updated)
	if updated.Title == "New Conversation" || updated.Title == "" {
		t.Fatalf("expected generated title, got %q", updated.Title)
	}
	if updated.UpdatedAt.Before(conv.UpdatedAt) {
		t.Fatalf("updatedAt went backwards")
	}

	msgsResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil, session)
	assertStatus(t, msgsResp, http.StatusOK)
	var msgs []messageBody
	decodeJSON(t, msgsResp.Body.Bytes(), &msgs)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	usageResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/usage", nil, session)
	assertStatus(t, usageResp, http.StatusOK)
	var rows []struct {
		TokensUsed        int            `json:"tokensUsed"`
		MessagesExchanged int            `json:"messagesExchanged"`
		ModelsUsed        map[string]int `json:"modelsUsed"`
	}
	decodeJSON(t, usageResp.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0].TokensUsed != 1 || rows[0].ModelsUsed["gemini-1.5-flash"] != 1 {
		t.Fatalf("unexpected usage rows %+v", rows)
	}

	aliasResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/analytics/usage", nil, session)
	assertStatus(t, aliasResp, http.StatusOK)

	totalsResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/analytics/totals", nil, session)
	assertStatus(t, totalsResp, http.StatusOK)
	var totals struct {
		TotalTokens        int `json:"totalTokens"`
		TotalMessages      int `json:"totalMessages"`
		TotalConversations int `json:"totalConversations"`
	}
	decodeJSON(t, totalsResp.Body.Bytes(), &totals)
	if totals.TotalTokens != 1 || totals.TotalMessages != 1 || totals.TotalConversations != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestSendMessageKeepsUserMessageWhenGenerationFails(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.err = errors.New("quota exceeded")
	session := sessionHeader("s")
	conv := createConversation(t, srv.router, session, "New Conversation", "")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": "hello"}, session)
	assertStatus(t, resp, http.StatusCreated)
	var sent sendBody
	decodeJSON(t, resp.Body.Bytes(), &sent)
	if sent.UserMessage == nil || sent.AssistantMessage != nil {
		t.Fatalf("expected only the user message, got %+v", sent)
	}
	if sent.Error != assistant.GenerationFailedMessage {
		t.Fatalf("unexpected error text %q", sent.Error)
	}

	usageResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/usage", nil, session)
	assertStatus(t, usageResp, http.StatusOK)
	if body := usageResp.Body.String(); body != "[]" {
		t.Fatalf("expected no usage rows, got %s", body)
	}
}

func TestSendMessageValidation(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")
	conv := createConversation(t, srv.router, session, "Chat", "")

	bad := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "system", "content": "hello"}, session)
	assertStatus(t, bad, http.StatusBadRequest)

	empty := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": "   "}, session)
	assertStatus(t, empty, http.StatusBadRequest)

	missing := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/nope/messages",
		map[string]string{"role": "user", "content": "hello"}, session)
	assertStatus(t, missing, http.StatusNotFound)

	if len(srv.generator.prompts) != 0 {
		t.Fatalf("generator should not run for rejected requests")
	}
}

func TestMissingSessionRejected(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations", nil, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	var body map[string]string
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body["error"] != "missing sessionId" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestSessionIDFromQueryAndBody(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations",
		map[string]string{"title": "From Body", "sessionId": "body-session"}, nil)
	assertStatus(t, resp, http.StatusCreated)

	list := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations?sessionId=body-session", nil, nil)
	assertStatus(t, list, http.StatusOK)
	var convs []conversationBody
	decodeJSON(t, list.Body.Bytes(), &convs)
	if len(convs) != 1 || convs[0].Title != "From Body" {
		t.Fatalf("unexpected conversations %+v", convs)
	}
}

func TestSessionIsolation(t *testing.T) {
	srv := newTestServer(t)
	conv := createConversation(t, srv.router, sessionHeader("alice"), "Secret", "")

	list := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations", nil, sessionHeader("bob"))
	assertStatus(t, list, http.StatusOK)
	if body := list.Body.String(); body != "[]" {
		t.Fatalf("bob sees alice's conversations: %s", body)
	}
	get := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/"+conv.ID, nil, sessionHeader("bob"))
	assertStatus(t, get, http.StatusNotFound)
	del := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/"+conv.ID, nil, sessionHeader("bob"))
	assertStatus(t, del, http.StatusNotFound)
}

func TestDeleteConversation(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")

	unknown := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/does-not-exist", nil, session)
	assertStatus(t, unknown, http.StatusNotFound)

	conv := createConversation(t, srv.router, session, "Chat", "")
	send := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": "hello"}, session)
	assertStatus(t, send, http.StatusCreated)

	del := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/"+conv.ID, nil, session)
	assertStatus(t, del, http.StatusOK)

	msgs := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil, session)
	assertStatus(t, msgs, http.StatusOK)
	if body := msgs.Body.String(); body != "[]" {
		t.Fatalf("messages survived cascade delete: %s", body)
	}
	again := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/"+conv.ID, nil, session)
	assertStatus(t, again, http.StatusNotFound)
}

func TestUpdateConversation(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")
	conv := createConversation(t, srv.router, session, "Chat", "")

	resp := doJSONRequest(t, srv.router, http.MethodPatch, "/api/conversations/"+conv.ID,
		map[string]string{"title": "Renamed", "model": "gpt-4o-mini"}, session)
	assertStatus(t, resp, http.StatusOK)
	var updated conversationBody
	decodeJSON(t, resp.Body.Bytes(), &updated)
	if updated.Title != "Renamed" || updated.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected conversation %+v", updated)
	}

	unknownField := doJSONRequest(t, srv.router, http.MethodPatch, "/api/conversations/"+conv.ID,
		map[string]string{"owner": "mallory"}, session)
	assertStatus(t, unknownField, http.StatusBadRequest)

	badModel := doJSONRequest(t, srv.router, http.MethodPatch, "/api/conversations/"+conv.ID,
		map[string]string{"model": "Not A Model!"}, session)
	assertStatus(t, badModel, http.StatusBadRequest)
}

func TestCreateConversationValidation(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")

	noTitle := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations",
		map[string]string{"model": "gemini-1.5-flash"}, session)
	assertStatus(t, noTitle, http.StatusBadRequest)

	badModel := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations",
		map[string]string{"title": "Chat", "model": "Bad Model!"}, session)
	assertStatus(t, badModel, http.StatusBadRequest)
}

func TestPatchMessageBookmark(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")
	conv := createConversation(t, srv.router, session, "Chat", "")
	send := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": "hello"}, session)
	assertStatus(t, send, http.StatusCreated)
	var sent sendBody
	decodeJSON(t, send.Body.Bytes(), &sent)
	msgID := sent.AssistantMessage.ID

	resp := doJSONRequest(t, srv.router, http.MethodPatch, "/api/messages/"+msgID,
		map[string]bool{"isBookmarked": true}, session)
	assertStatus(t, resp, http.StatusOK)
	var msg messageBody
	decodeJSON(t, resp.Body.Bytes(), &msg)
	if !msg.IsBookmarked || msg.UpdatedAt == nil {
		t.Fatalf("bookmark not reflected: %+v", msg)
	}

	list := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil, session)
	var msgs []messageBody
	decodeJSON(t, list.Body.Bytes(), &msgs)
	if !msgs[1].IsBookmarked {
		t.Fatalf("bookmark not persisted")
	}

	missing := doJSONRequest(t, srv.router, http.MethodPatch, "/api/messages/unknown",
		map[string]bool{"isBookmarked": true}, session)
	assertStatus(t, missing, http.StatusNotFound)

	unknownField := doJSONRequest(t, srv.router, http.MethodPatch, "/api/messages/"+msgID,
		map[string]string{"role": "assistant"}, session)
	assertStatus(t, unknownField, http.StatusBadRequest)

	del := doJSONRequest(t, srv.router, http.MethodDelete, "/api/messages/"+msgID, nil, session)
	assertStatus(t, del, http.StatusOK)
	delAgain := doJSONRequest(t, srv.router, http.MethodDelete, "/api/messages/"+msgID, nil, session)
	assertStatus(t, delAgain, http.StatusNotFound)
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	session := sessionHeader("s")

	get := doJSONRequest(t, srv.router, http.MethodGet, "/api/settings", nil, session)
	assertStatus(t, get, http.StatusOK)
	var settings struct {
		Theme    string `json:"theme"`
		FontSize string `json:"fontSize"`
		AutoSave bool   `json:"autoSave"`
	}
	decodeJSON(t, get.Body.Bytes(), &settings)
	if settings.Theme != "dark-gray" || settings.FontSize != "medium" || !settings.AutoSave {
		t.Fatalf("unexpected defaults %+v", settings)
	}

	patch := doJSONRequest(t, srv.router, http.MethodPatch, "/api/settings",
		map[string]interface{}{"theme": "blue", "autoSave": false}, session)
	assertStatus(t, patch, http.StatusOK)
	decodeJSON(t, patch.Body.Bytes(), &settings)
	if settings.Theme != "blue" || settings.AutoSave || settings.FontSize != "medium" {
		t.Fatalf("unexpected settings after patch %+v", settings)
	}

	invalid := doJSONRequest(t, srv.router, http.MethodPatch, "/api/settings",
		map[string]string{"theme": "neon"}, session)
	assertStatus(t, invalid, http.StatusBadRequest)
}

func TestCompare(t *testing.T) {
	srv := newTestServer(t)

	single := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/compare",
		map[string]string{"message": "ping", "model": "gemini-1.5-pro"}, nil)
	assertStatus(t, single, http.StatusOK)
	var one ai.CompareResult
	decodeJSON(t, single.Body.Bytes(), &one)
	if one.Model != "gemini-1.5-pro" || one.Response != "echo: ping" {
		t.Fatalf("unexpected compare result %+v", one)
	}

	many := doJSONRequest(t, srv.router, http.MethodPost, "/api/compare",
		map[string]interface{}{"message": "ping", "models": []string{"gemini-1.5-flash", "broken-model"}}, nil)
	assertStatus(t, many, http.StatusOK)
	var batch struct {
		Results []ai.CompareResult `json:"results"`
	}
	decodeJSON(t, many.Body.Bytes(), &batch)
	if len(batch.Results) != 2 || batch.Results[0].Error != "" || batch.Results[1].Error == "" {
		t.Fatalf("unexpected batch %+v", batch.Results)
	}

	missing := doJSONRequest(t, srv.router, http.MethodPost, "/api/compare", map[string]string{"model": "gemini-1.5-flash"}, nil)
	assertStatus(t, missing, http.StatusBadRequest)

	failed := doJSONRequest(t, srv.router, http.MethodPost, "/api/compare",
		map[string]string{"message": "ping", "model": "broken-model"}, nil)
	assertStatus(t, failed, http.StatusInternalServerError)
}

func TestCompareRejectsTooManyModels(t *testing.T) {
	srv := newTestServer(t)

	models := make([]string, ai.MaxCompareModels+1)
	for i := range models {
		models[i] = "gemini-1.5-flash"
	}
	tooMany := doJSONRequest(t, srv.router, http.MethodPost, "/api/compare",
		map[string]interface{}{"message": "ping", "models": models}, nil)
	assertStatus(t, tooMany, http.StatusBadRequest)

	atLimit := doJSONRequest(t, srv.router, http.MethodPost, "/api/compare",
		map[string]interface{}{"message": "ping", "models": models[:ai.MaxCompareModels]}, nil)
	assertStatus(t, atLimit, http.StatusOK)
	var batch struct {
		Results []ai.CompareResult `json:"results"`
	}
	decodeJSON(t, atLimit.Body.Bytes(), &batch)
	if len(batch.Results) != ai.MaxCompareModels {
		t.Fatalf("expected %d results, got %d", ai.MaxCompareModels, len(batch.Results))
	}
}

func TestModelsAndHealth(t *testing.T) {
	srv := newTestServer(t)
	health := doJSONRequest(t, srv.router, http.MethodGet, "/api/health", nil, nil)
	assertStatus(t, health, http.StatusOK)

	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/models", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var catalog []ai.ModelInfo
	decodeJSON(t, resp.Body.Bytes(), &catalog)
	if len(catalog) != len(ai.Catalog()) {
		t.Fatalf("expected %d models, got %d", len(ai.Catalog()), len(catalog))
	}
}

func TestUploadFile(t *testing.T) {
	srv := newTestServer(t)

	resp := postFile(t, srv.router, "notes.txt", "text/plain", []byte("first\nsecond"))
	assertStatus(t, resp, http.StatusOK)
	var result upload.Result
	decodeJSON(t, resp.Body.Bytes(), &result)
	if result.OriginalName != "notes.txt" || result.Analysis.Type != upload.TypeText || result.Analysis.Metadata.Lines != 2 {
		t.Fatalf("unexpected upload result %+v", result)
	}

	served := doJSONRequest(t, srv.router, http.MethodGet, result.URL, nil, nil)
	assertStatus(t, served, http.StatusOK)
	if served.Body.String() != "first\nsecond" {
		t.Fatalf("unexpected served content %q", served.Body.String())
	}

	unsupported := postFile(t, srv.router, "run.exe", "application/x-msdownload", []byte("MZ"))
	assertStatus(t, unsupported, http.StatusBadRequest)

	tooLarge := postFile(t, srv.router, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 2<<10))
	assertStatus(t, tooLarge, http.StatusRequestEntityTooLarge)

	noFile := doJSONRequest(t, srv.router, http.MethodPost, "/api/upload", nil, nil)
	assertStatus(t, noFile, http.StatusBadRequest)
}

func createConversation(t *testing.T, router *gin.Engine, headers map[string]string, title, model string) conversationBody {
	t.Helper()
	body := map[string]string{"title": title}
	if model != "" {
		body["model"] = model
	}
	resp := doJSONRequest(t, router, http.MethodPost, "/api/conversations", body, headers)
	assertStatus(t, resp, http.StatusCreated)
	var conv conversationBody
	decodeJSON(t, resp.Body.Bytes(), &conv)
	if conv.ID == "" {
		t.Fatalf("expected conversation id")
	}
	return conv
}

func sessionHeader(id string) map[string]string {
	return map[string]string{"X-Session-Id": id}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postFile(t *testing.T, router *gin.Engine, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v (body %s)", err, data)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, want %d, body: %s", rec.Code, want, rec.Body.String())
	}
}
