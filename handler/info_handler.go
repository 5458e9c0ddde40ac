package handler

import (
	"log"
	"net/http"
	"os"

	"github.com/daureny/rag-chatbot-be/config"
	"github.com/daureny/rag-chatbot-be/service"
	"github.com/gin-gonic/gin"
)

// InfoHandler serves the diagnostic endpoints: ping, index info, update
// stamps, indexing progress and the configuration summary.
type InfoHandler struct {
	cfg      *config.Config
	manager  *service.IndexManager
	sessions service.SessionStore
}

func NewInfoHandler(cfg *config.Config, manager *service.IndexManager, sessions service.SessionStore) *InfoHandler {
	return &InfoHandler{
		cfg:      cfg,
		manager:  manager,
		sessions: sessions,
	}
}

func (h *InfoHandler) HandlePing(c *gin.Context) {
	indexStatus := "Индекс не найден"
	if h.manager.IndexExists() {
		indexStatus = "Индекс найден"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"message":      "Сервер работает",
		"index_status": indexStatus,
	})
}

func (h *InfoHandler) HandleIndexInfo(c *gin.Context) {
	result := gin.H{
		"status":             "success",
		"index_location":     h.manager.IndexDir(),
		"index_exists":       h.manager.IndexExists(),
		"local_index_exists": h.manager.LocalIndexExists(),
	}

	if metadata, err := h.manager.Metadata(); err == nil {
		result["metadata"] = metadata
	} else if !os.IsNotExist(err) {
		result["metadata_error"] = err.Error()
	}

	if _, copiedAt := h.manager.LastUpdated(); copiedAt != "" {
		result["copied_at"] = copiedAt
	}

	if count, err := h.manager.ChunkCount(); err == nil {
		result["chunk_count"] = count
	} else if !os.IsNotExist(err) {
		result["chunk_store_error"] = err.Error()
	}

	c.JSON(http.StatusOK, result)
}

func (h *InfoHandler) HandleLastUpdated(c *gin.Context) {
	result := gin.H{
		"local_index_exists": h.manager.LocalIndexExists(),
	}
	lastUpdated, copiedAt := h.manager.LastUpdated()
	if lastUpdated != "" {
		result["last_updated"] = lastUpdated
	}
	if copiedAt != "" {
		result["copied_at"] = copiedAt
	}
	c.JSON(http.StatusOK, result)
}

func (h *InfoHandler) HandleIndexingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Status())
}

func (h *InfoHandler) HandleConfig(c *gin.Context) {
	activeSessions, err := h.sessions.ActiveCount(c.Request.Context())
	if err != nil {
		log.Printf("Failed to count active sessions: %v", err)
	}

	documentsCount := 0
	if entries, err := os.ReadDir(h.cfg.DocsDir); err == nil {
		documentsCount = len(entries)
	}

	result := gin.H{
		"app_running":          true,
		"openai_api_key":       h.cfg.OpenAIAPIKey != "",
		"anthropic_api_key":    h.cfg.AnthropicAPIKey != "",
		"telegram_bot_token":   h.cfg.TelegramBotToken != "",
		"index_dir_exists":     dirExists(h.cfg.IndexDir),
		"index_exists":         h.manager.IndexExists(),
		"is_indexing":          h.manager.IsBuilding(),
		"documents_dir_exists": dirExists(h.cfg.DocsDir),
		"documents_count":      documentsCount,
		"active_sessions":      activeSessions,
	}
	if lastUpdated, _ := h.manager.LastUpdated(); lastUpdated != "" {
		result["last_updated"] = lastUpdated
	}

	c.JSON(http.StatusOK, result)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
