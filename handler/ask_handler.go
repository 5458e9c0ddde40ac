package handler

import (
	"context"
	"net/http"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Asker answers a single question within a session.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) *service.AskResult
}

type AskHandler struct {
	queryService Asker
}

func NewAskHandler(queryService Asker) *AskHandler {
	return &AskHandler{
		queryService: queryService,
	}
}

// HandleAsk answers the form question "q" inside the session identified by
// the session_id cookie, minting a new session when the cookie is absent.
func (h *AskHandler) HandleAsk(c *gin.Context) {
	question := c.PostForm("q")

	sessionID, err := c.Cookie("session_id")
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.SetCookie("session_id", sessionID, int(service.SessionMaxAge.Seconds()), "/", "", false, true)

	result := h.queryService.Ask(c.Request.Context(), sessionID, question)

	status := http.StatusOK
	if result.IsError {
		status = http.StatusInternalServerError
	}
	c.JSON(status, types.AskResponse{
		Answer:  result.Answer,
		Sources: result.Sources,
	})
}
