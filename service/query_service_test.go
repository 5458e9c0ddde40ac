package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	docs    []RetrievedDoc
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k, fetchK int, lambda float64) ([]RetrievedDoc, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeChat struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeChat) Chat(_ context.Context, prompt string, _ float32) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestQueryService(retriever Retriever, primary, fallback ChatProvider) *QueryService {
	return NewQueryService(retriever, primary, fallback, NewMemorySessionStore(), "")
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	retriever := &fakeRetriever{}
	primary := &fakeChat{answer: "ответ"}
	svc := newTestQueryService(retriever, primary, &fakeChat{})

	result := svc.Ask(context.Background(), "s1", "   ")

	assert.Equal(t, msgEmptyQuestion, result.Answer)
	assert.False(t, result.IsError)
	assert.Empty(t, retriever.queries, "empty questions must not reach retrieval")
	assert.Empty(t, primary.prompts)
}

func TestAskBuildsPromptFromRetrievedDocuments(t *testing.T) {
	retriever := &fakeRetriever{docs: []RetrievedDoc{
		{Title: "Закон о банках", Content: "Банк обязан поддерживать достаточность капитала."},
	}}
	primary := &fakeChat{answer: "ОТВЕТ: Согласно Закону о банках, капитал должен быть достаточным."}
	svc := newTestQueryService(retriever, primary, &fakeChat{})

	result := svc.Ask(context.Background(), "s1", "Какие требования к капиталу?")

	assert.Equal(t, "Согласно Закону о банках, капитал должен быть достаточным.", result.Answer)
	assert.False(t, result.IsError)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Закон о банках", result.Sources[0].Title)

	require.Len(t, primary.prompts, 1)
	prompt := primary.prompts[0]
	assert.Contains(t, prompt, "Закон о банках: Банк обязан поддерживать достаточность капитала.")
	assert.Contains(t, prompt, "Текущий вопрос пользователя: Какие требования к капиталу?")
	assert.NotContains(t, prompt, noDocumentsContext)
}

func TestAskDegradesWhenRetrievalFails(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index not loaded")}
	primary := &fakeChat{answer: "Общий ответ без документов."}
	svc := newTestQueryService(retriever, primary, &fakeChat{})

	result := svc.Ask(context.Background(), "s1", "Что такое ВПОДК?")

	assert.False(t, result.IsError)
	assert.Equal(t, "Общий ответ без документов.", result.Answer)
	assert.Empty(t, result.Sources)
	require.Len(t, primary.prompts, 1)
	assert.Contains(t, primary.prompts[0], noDocumentsContext)
}

func TestAskFallsBackToSecondaryModel(t *testing.T) {
	retriever := &fakeRetriever{}
	primary := &fakeChat{err: errors.New("anthropic overloaded")}
	fallback := &fakeChat{answer: "ОТВЕТ: запасной ответ"}
	svc := newTestQueryService(retriever, primary, fallback)

	result := svc.Ask(context.Background(), "s1", "вопрос")

	assert.Equal(t, "запасной ответ", result.Answer)
	assert.False(t, result.IsError)
	require.Len(t, fallback.prompts, 1)
}

func TestAskReportsErrorWhenBothModelsFail(t *testing.T) {
	retriever := &fakeRetriever{}
	primary := &fakeChat{err: errors.New("down")}
	fallback := &fakeChat{err: errors.New("also down")}
	svc := newTestQueryService(retriever, primary, fallback)

	result := svc.Ask(context.Background(), "s1", "вопрос")

	assert.True(t, result.IsError)
	assert.Equal(t, msgModelError, result.Answer)
}

func TestAskAugmentsSearchQueryWithRecentQuestions(t *testing.T) {
	retriever := &fakeRetriever{}
	primary := &fakeChat{answer: "ответ"}
	svc := newTestQueryService(retriever, primary, &fakeChat{})
	ctx := context.Background()

	svc.Ask(ctx, "s1", "Что такое риск-аппетит?")
	svc.Ask(ctx, "s1", "Кто его утверждает?")
	svc.Ask(ctx, "s1", "Как его рассчитать?")

	require.Len(t, retriever.queries, 3)
	assert.Equal(t, "Что такое риск-аппетит?", retriever.queries[0])
	assert.Equal(t, "Что такое риск-аппетит? Кто его утверждает?", retriever.queries[1])
	assert.Equal(t, "Что такое риск-аппетит? Кто его утверждает? Как его рассчитать?", retriever.queries[2])
}

func TestAskStoresDialogHistory(t *testing.T) {
	retriever := &fakeRetriever{}
	primary := &fakeChat{answer: "ОТВЕТ: первый ответ"}
	sessions := NewMemorySessionStore()
	svc := NewQueryService(retriever, primary, &fakeChat{}, sessions, "")
	ctx := context.Background()

	svc.Ask(ctx, "s1", "первый вопрос")

	history, err := sessions.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "первый вопрос", history[0].Question)
	assert.Equal(t, "первый ответ", history[0].Answer)

	primary.answer = "второй ответ"
	svc.Ask(ctx, "s1", "второй вопрос")

	require.Len(t, primary.prompts, 2)
	assert.Contains(t, primary.prompts[1], "Вопрос пользователя: первый вопрос")
	assert.Contains(t, primary.prompts[1], "Твой ответ: первый ответ")
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "Суть ответа.", cleanAnswer("Рассуждения модели. ОТВЕТ: Суть ответа."))
	assert.Equal(t, "строка один\nстрока два", cleanAnswer("строка один<br>строка два"))
	assert.Equal(t, "абзац", cleanAnswer("<p>абзац</p>"))
	assert.Equal(t, "без маркера", cleanAnswer("  без маркера  "))
}

func TestCollectSourcesDeduplicatesByTitle(t *testing.T) {
	long := strings.Repeat("д", sourcePreviewLimit+100)
	docs := []RetrievedDoc{
		{Title: "Закон о банках", Content: "первый фрагмент"},
		{Title: "МСФО 9", Content: long},
		{Title: "Закон о банках", Content: "другой фрагмент того же документа"},
	}

	sources := collectSources(docs)

	require.Len(t, sources, 2)
	assert.Equal(t, "Закон о банках", sources[0].Title)
	assert.Equal(t, "первый фрагмент", sources[0].Content, "first occurrence wins")
	assert.Equal(t, "МСФО 9", sources[1].Title)
	assert.Len(t, []rune(sources[1].Content), sourcePreviewLimit+3, "long previews are truncated with an ellipsis")
}
