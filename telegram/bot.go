package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
)

// maxMessageLength is the Telegram hard limit for one message.
const maxMessageLength = 4096

// splitPartLength leaves room for the "Часть i/n:" prefix on split answers.
const splitPartLength = 4000

const welcomeText = "👋 Добро пожаловать! Я чат-бот с доступом к базе знаний по финансовым и юридическим документам.\n\n" +
	"Задайте мне вопрос, и я найду релевантную информацию.\n\n" +
	"Команды:\n" +
	"/start - Начать новую беседу\n" +
	"/help - Справка\n" +
	"/clear - Очистить историю диалога"

const helpText = "🔍 Я - RAG чат-бот, использующий базу знаний для ответов на ваши вопросы.\n\n" +
	"Как со мной работать:\n" +
	"- Просто задайте вопрос, и я найду ответ в базе знаний\n" +
	"- Я помню историю диалога и могу продолжать обсуждение\n" +
	"- Я работаю с финансовыми и юридическими документами\n\n" +
	"Команды:\n" +
	"/start - Начать новую беседу\n" +
	"/clear - Очистить историю диалога\n" +
	"/help - Показать эту справку"

const unknownCommandText = "❓ Неизвестная команда. Доступные команды:\n" +
	"/start - Начать новую беседу\n" +
	"/help - Показать справку\n" +
	"/clear - Очистить историю диалога"

const greetingResponse = "Здравствуйте! Чем я могу вам помочь? Задайте вопрос по финансовым или юридическим темам."

var greetings = []string{
	"привет", "здравствуй", "здравствуйте", "добрый день", "доброе утро",
	"добрый вечер", "hi", "hello", "hey", "приветствую", "здарова",
	"салют", "хай", "хеллоу",
}

// Bot is the Telegram frontend. Sessions are keyed by the numeric user id so
// each user keeps a private dialog history.
type Bot struct {
	api          *tgbotapi.BotAPI
	queryService *service.QueryService

	mu          sync.Mutex
	lastSources map[int64][]types.SourceCitation
}

func NewBot(token string, queryService *service.QueryService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{
		api:          api,
		queryService: queryService,
		lastSources:  make(map[int64][]types.SourceCitation),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	log.Printf("Telegram bot authorized as @%s", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Println("Telegram bot stopped")
			return
		case update := <-updates:
			switch {
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.Text != "":
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	sessionID := strconv.FormatInt(userID, 10)
	text := strings.TrimSpace(msg.Text)

	// A lone "/" is sometimes sent by accident, ignore it.
	if text == "/" {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(msg.Chat.ID, welcomeText)
		case "help":
			b.reply(msg.Chat.ID, helpText)
		case "clear":
			found, err := b.queryService.Sessions().Clear(ctx, sessionID)
			if err != nil {
				log.Printf("Failed to clear session for user %d: %v", userID, err)
				b.reply(msg.Chat.ID, "Произошла ошибка при очистке истории.")
				return
			}
			if found {
				b.reply(msg.Chat.ID, "🧹 История диалога очищена!")
			} else {
				b.reply(msg.Chat.ID, "История диалога уже пуста.")
			}
		default:
			b.reply(msg.Chat.ID, unknownCommandText)
		}
		return
	}

	if isGreeting(text) {
		if err := b.queryService.Sessions().Append(ctx, sessionID, types.QAPair{Question: text, Answer: greetingResponse}); err != nil {
			log.Printf("Failed to store greeting for user %d: %v", userID, err)
		}
		b.reply(msg.Chat.ID, greetingResponse)
		return
	}

	processing, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "🔍 Ищу ответ на ваш вопрос..."))
	if err != nil {
		log.Printf("Failed to send processing notice: %v", err)
	}

	result := b.queryService.Ask(ctx, sessionID, text)

	if processing.MessageID != 0 {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, processing.MessageID)); err != nil {
			log.Printf("Failed to delete processing notice: %v", err)
		}
	}

	if result.IsError {
		b.reply(msg.Chat.ID, "❌ "+result.Answer)
		return
	}

	for _, part := range splitMessage(result.Answer) {
		b.reply(msg.Chat.ID, part)
	}

	if len(result.Sources) > 0 {
		b.mu.Lock()
		b.lastSources[userID] = result.Sources
		b.mu.Unlock()

		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📚 Показать источники", fmt.Sprintf("sources_%d", userID)),
			),
		)
		prompt := tgbotapi.NewMessage(msg.Chat.ID, "Нажмите для просмотра источников ответа:")
		prompt.ReplyMarkup = keyboard
		if _, err := b.api.Send(prompt); err != nil {
			log.Printf("Failed to send sources button: %v", err)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	if !strings.HasPrefix(cq.Data, "sources_") {
		return
	}
	userID, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, "sources_"), 10, 64)
	if err != nil {
		return
	}

	chatID := cq.Message.Chat.ID
	if userID != cq.From.ID {
		b.reply(chatID, "Эта кнопка предназначена только для автора вопроса.")
		return
	}

	b.mu.Lock()
	sources := b.lastSources[userID]
	b.mu.Unlock()

	if len(sources) == 0 {
		b.reply(chatID, "Источники для этого ответа недоступны.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📚 Использованные источники:\n\n")
	for i, source := range sources {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, source.Title)
		fmt.Fprintf(&sb, "Фрагмент: %s\n\n", truncateRunes(source.Content, 300))
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("Failed to send telegram message: %v", err)
	}
}

// isGreeting reports whether text is just a salutation: either exactly a
// known greeting, or starting with one and at most three words long.
func isGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, g := range greetings {
		if lower == g {
			return true
		}
	}
	if len(strings.Fields(lower)) > 3 {
		return false
	}
	for _, g := range greetings {
		if strings.HasPrefix(lower, g) {
			return true
		}
	}
	return false
}

// splitMessage breaks a long answer into Telegram-sized parts, labelling each
// part when there is more than one.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += splitPartLength {
		end := start + splitPartLength
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = fmt.Sprintf("Часть %d/%d:\n\n%s", i+1, len(chunks), chunk)
	}
	return parts
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
