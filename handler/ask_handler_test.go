package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAsker struct {
	result    *service.AskResult
	sessionID string
	question  string
}

func (f *fakeAsker) Ask(_ context.Context, sessionID, question string) *service.AskResult {
	f.sessionID = sessionID
	f.question = question
	return f.result
}

func postAsk(t *testing.T, asker *fakeAsker, question, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST("/ask", NewAskHandler(asker).HandleAsk)

	form := url.Values{"q": {question}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleAskReturnsAnswerWithSources(t *testing.T) {
	asker := &fakeAsker{result: &service.AskResult{
		Answer:  "Согласно Закону о банках, капитал должен быть достаточным.",
		Sources: []types.SourceCitation{{Title: "Закон о банках", Content: "фрагмент"}},
	}}

	w := postAsk(t, asker, "Какие требования к капиталу?", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Какие требования к капиталу?", asker.question)
	assert.NotEmpty(t, asker.sessionID, "a new session id is minted when the cookie is absent")

	var resp types.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, asker.result.Answer, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Закон о банках", resp.Sources[0].Title)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "session_id", cookies[0].Name)
	assert.Equal(t, asker.sessionID, cookies[0].Value)
}

func TestHandleAskReusesSessionCookie(t *testing.T) {
	asker := &fakeAsker{result: &service.AskResult{Answer: "ответ"}}

	w := postAsk(t, asker, "вопрос", "existing-session")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "existing-session", asker.sessionID)
}

func TestHandleAskReportsServiceErrorsWith500(t *testing.T) {
	asker := &fakeAsker{result: &service.AskResult{Answer: "Извините, произошла ошибка.", IsError: true}}

	w := postAsk(t, asker, "вопрос", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp types.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Извините, произошла ошибка.", resp.Answer)
}
