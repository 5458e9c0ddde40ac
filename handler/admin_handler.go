package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log"
	"net/http"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
	"github.com/gin-gonic/gin"
)

// AdminHandler guards index maintenance endpoints with a hashed admin token:
// the admin_token header must equal the hex SHA-256 of the configured
// password.
type AdminHandler struct {
	adminPassword string
	manager       *service.IndexManager
}

func NewAdminHandler(adminPassword string, manager *service.IndexManager) *AdminHandler {
	return &AdminHandler{
		adminPassword: adminPassword,
		manager:       manager,
	}
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	if h.adminPassword == "" {
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: "Пароль администратора не задан в конфигурации сервера",
		})
		return false
	}

	sum := sha256.Sum256([]byte(h.adminPassword))
	expected := hex.EncodeToString(sum[:])
	token := c.GetHeader("admin_token")

	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		c.JSON(http.StatusForbidden, types.DataResponse{
			Status:  "error",
			Message: "Доступ запрещен: неверный пароль администратора",
		})
		return false
	}
	return true
}

// HandleRebuild starts a full background reindex of the documents directory.
func (h *AdminHandler) HandleRebuild(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	log.Println("Admin requested index rebuild...")
	if err := h.manager.StartRebuild(); err != nil {
		if errors.Is(err, service.ErrRebuildInProgress) {
			c.JSON(http.StatusOK, types.DataResponse{
				Status:  "info",
				Message: "Индексация уже выполняется. Пожалуйста, подождите завершения текущего процесса.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: "Ошибка при запуске пересоздания индекса: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status:  "success",
		Message: "Запущен процесс обновления базы знаний. Это может занять некоторое время.",
	})
}

// HandleUpdateIndex copies the project-local index into persistent storage.
func (h *AdminHandler) HandleUpdateIndex(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	log.Println("Admin requested index copy to persistent storage...")
	if err := h.manager.UpdateFromLocal(); err != nil {
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: "Не удалось скопировать индекс в persistent storage: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status:  "success",
		Message: "Индекс успешно скопирован в persistent storage",
	})
}
