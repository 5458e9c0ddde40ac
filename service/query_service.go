package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/daureny/rag-chatbot-be/types"
)

const (
	retrievalK      = 6
	retrievalFetchK = 12
	retrievalLambda = 0.7

	answerTemperature = 0.2

	sourcePreviewLimit = 3000
	titleLimit         = 100
)

const (
	msgEmptyQuestion = "Пожалуйста, введите ваш вопрос."
	msgModelError    = "Извините, произошла ошибка в сервисе языковой модели. Пожалуйста, попробуйте позже."
	msgInternalError = "Извините, произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже или обратитесь к администратору."

	noDocumentsContext = "Документов не найдено. Постарайся ответить, используя только историю диалога, если это возможно."
)

const systemPrompt = `Ты ассистент с доступом к базе знаний по финансовым и юридическим документам.
Используй информацию из базы знаний для ответа на вопросы.

ОЧЕНЬ ВАЖНО: При ответе обязательно учитывай историю диалога и предыдущие вопросы пользователя!
Если пользователь задает вопрос, который связан с предыдущим (например "Как его рассчитать?"),
обязательно восстанови контекст из предыдущих сообщений.

Если в базе знаний нет достаточной информации для полного ответа:
1. Честно признайся, что конкретной информации нет в базе знаний
2. Если можешь дать общий ответ из своих знаний, сделай это, но четко отмечай, что это общая информация, а не из конкретных документов

Когда отвечаешь на вопросы, связанные с финансовыми или юридическими темами:
- Цитируй конкретные положения из найденных документов, когда это уместно
- Приводи точные определения терминов из документов
- Если речь идет о процедуре или расчете, описывай шаги последовательно

При цитировании источников информации:
- Используй реальные названия документов вместо "Документ 1", "Документ 2" и т.д.
- Можешь сокращать длинные названия, сохраняя ключевую идентифицирующую информацию
- При ссылке на конкретный источник используй формат: "Согласно [название документа], ..."

Если пользователь спрашивает "как рассчитывается" или "как определяется" некий термин,
и в базе знаний отсутствует точная формула или численный метод,
ты должен:
- Интерпретировать вопрос шире — как просьбу объяснить как определяется, из чего состоит, какие компоненты, лимиты или методология используются
- Описать подходы, параметры и логику, стоящие за определением или управлением этим понятием

Форматирование ответа:
- Используй ясные, хорошо структурированные абзацы
- Для списков используй маркеры "-" или нумерацию "1.", "2."
- Выделяй важные термины и концепции с помощью *звездочек*

Твоя цель — дать максимально точный, информативный и понятный ответ, опираясь в первую очередь на предоставленные документы.`

const promptInstructions = `ВАЖНО:
1. Начни свой ответ со слов "ОТВЕТ:" и сразу переходи к сути.
2. Если информация из базы знаний напрямую содержит ответ на вопрос пользователя, используй эту информацию В ПЕРВУЮ ОЧЕРЕДЬ, даже если твои общие знания содержат другую информацию.
3. Всегда приоритизируй информацию из базы знаний над своими общими знаниями.
4. Обязательно указывай названия документов при цитировании, используя точный формат источников из контекста.
5. Если в базе знаний нет информации по вопросу, начни ответ с "ОТВЕТ: В доступных документах не найдена информация о..."`

// ChatProvider generates an answer for a fully assembled prompt.
type ChatProvider interface {
	Chat(ctx context.Context, prompt string, temperature float32) (string, error)
}

// AskResult is the outcome of one question. IsError marks responses the HTTP
// layer should report with a 500.
type AskResult struct {
	Answer  string
	Sources []types.SourceCitation
	IsError bool
}

// QueryService answers questions with retrieval-augmented generation. It is
// shared by the HTTP and Telegram frontends.
type QueryService struct {
	retriever Retriever
	primary   ChatProvider
	fallback  ChatProvider
	sessions  SessionStore

	errorLogDir string
}

func NewQueryService(retriever Retriever, primary, fallback ChatProvider, sessions SessionStore, errorLogDir string) *QueryService {
	return &QueryService{
		retriever:   retriever,
		primary:     primary,
		fallback:    fallback,
		sessions:    sessions,
		errorLogDir: errorLogDir,
	}
}

func (s *QueryService) Sessions() SessionStore {
	return s.sessions
}

// Ask runs the full pipeline: session upkeep, retrieval, generation with
// fallback, answer cleanup and citation assembly. It never returns an error;
// failures degrade into user-facing messages.
func (s *QueryService) Ask(ctx context.Context, sessionID, question string) (result *AskResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logError(question, fmt.Sprintf("panic: %v", r))
			result = &AskResult{Answer: msgInternalError, IsError: true}
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return &AskResult{Answer: msgEmptyQuestion}
	}

	if err := s.sessions.CleanExpired(ctx); err != nil {
		log.Printf("Failed to clean expired sessions: %v", err)
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		log.Printf("Failed to touch session %s: %v", sessionID, err)
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		log.Printf("Failed to read history for session %s: %v", sessionID, err)
		history = nil
	}

	// Prepend the last two questions so follow-ups like "как его
	// рассчитать?" still hit the right documents.
	searchQuery := question
	if len(history) > 0 {
		recent := history
		if len(recent) > 2 {
			recent = recent[len(recent)-2:]
		}
		questions := make([]string, 0, len(recent))
		for _, pair := range recent {
			questions = append(questions, pair.Question)
		}
		searchQuery = strings.Join(questions, " ") + " " + question
	}

	log.Printf("Searching for: %.50s...", searchQuery)
	docs, err := s.retriever.Retrieve(ctx, searchQuery, retrievalK, retrievalFetchK, retrievalLambda)
	if err != nil {
		log.Printf("Document search failed, continuing without documents: %v", err)
		docs = nil
	}
	log.Printf("Found %d relevant documents", len(docs))

	prompt := s.buildPrompt(question, history, docs)

	answer, err := s.primary.Chat(ctx, prompt, answerTemperature)
	if err != nil {
		log.Printf("Primary model failed, trying fallback: %v", err)
		answer, err = s.fallback.Chat(ctx, prompt, answerTemperature)
		if err != nil {
			log.Printf("Fallback model failed too: %v", err)
			return &AskResult{Answer: msgModelError, IsError: true}
		}
	}

	answer = cleanAnswer(answer)

	if err := s.sessions.Append(ctx, sessionID, types.QAPair{Question: question, Answer: answer}); err != nil {
		log.Printf("Failed to store history for session %s: %v", sessionID, err)
	}

	return &AskResult{Answer: answer, Sources: collectSources(docs)}
}

func (s *QueryService) buildPrompt(question string, history []types.QAPair, docs []RetrievedDoc) string {
	var dialogContext strings.Builder
	if len(history) > 0 {
		dialogContext.WriteString("История диалога:\n")
		for _, pair := range history {
			fmt.Fprintf(&dialogContext, "Вопрос пользователя: %s\nТвой ответ: %s\n\n", pair.Question, pair.Answer)
		}
	}

	var docContext strings.Builder
	if len(docs) == 0 {
		docContext.WriteString(noDocumentsContext)
	} else {
		for _, doc := range docs {
			fmt.Fprintf(&docContext, "%s: %s\n\n", truncateRunes(doc.Title, titleLimit), doc.Content)
		}
	}

	return fmt.Sprintf(`%s

%s
Контекст из базы знаний (это наиболее релевантные документы):
%s

Текущий вопрос пользователя: %s

%s`, systemPrompt, dialogContext.String(), docContext.String(), question, promptInstructions)
}

// cleanAnswer drops the "ОТВЕТ:" preamble marker and residual HTML markup
// models occasionally emit.
func cleanAnswer(answer string) string {
	if idx := strings.Index(answer, "ОТВЕТ:"); idx >= 0 {
		answer = answer[idx+len("ОТВЕТ:"):]
	}
	answer = strings.ReplaceAll(answer, "<br>", "\n")
	answer = strings.ReplaceAll(answer, "<p>", "")
	answer = strings.ReplaceAll(answer, "</p>", "\n")
	return strings.TrimSpace(answer)
}

// collectSources deduplicates retrieved documents by title, keeping
// first-seen order and capping content previews.
func collectSources(docs []RetrievedDoc) []types.SourceCitation {
	var sources []types.SourceCitation
	seen := make(map[string]bool)
	for _, doc := range docs {
		if seen[doc.Title] {
			continue
		}
		seen[doc.Title] = true
		sources = append(sources, types.SourceCitation{
			Title:   doc.Title,
			Content: truncateRunes(doc.Content, sourcePreviewLimit),
		})
	}
	return sources
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func (s *QueryService) logError(question, message string) {
	log.Printf("Request processing error: %s", message)
	if s.errorLogDir == "" {
		return
	}
	if err := os.MkdirAll(s.errorLogDir, 0755); err != nil {
		log.Printf("Failed to create error log directory: %v", err)
		return
	}
	logPath := filepath.Join(s.errorLogDir, "error.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open error log: %v", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "=== Ошибка запроса от %s ===\nВопрос: %s\nОшибка: %s\nТрассировка:\n%s\n\n",
		time.Now().Format(timeLayout), question, message, debug.Stack())
}
