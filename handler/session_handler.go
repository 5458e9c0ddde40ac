package handler

import (
	"log"
	"net/http"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions service.SessionStore
}

func NewSessionHandler(sessions service.SessionStore) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

// HandleClearSession wipes the dialog history of the caller's session.
func (h *SessionHandler) HandleClearSession(c *gin.Context) {
	sessionID, err := c.Cookie("session_id")
	if err != nil || sessionID == "" {
		c.JSON(http.StatusOK, types.DataResponse{Status: "error", Message: "Сессия не найдена"})
		return
	}

	found, err := h.sessions.Clear(c.Request.Context(), sessionID)
	if err != nil {
		log.Printf("Failed to clear session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, types.DataResponse{Status: "error", Message: "Не удалось очистить сессию"})
		return
	}
	if !found {
		c.JSON(http.StatusOK, types.DataResponse{Status: "error", Message: "Сессия не найдена"})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: "success", Message: "История диалога очищена"})
}
