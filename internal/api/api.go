// Package api is the HTTP boundary. Handlers are thin: decode, call the
// owning service, encode. Upstream failures surface as 500 with a
// generic message; the specific error is logged, never exposed.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/ai"
	"github.com/involvex/warelay/internal/cache"
	"github.com/involvex/warelay/internal/gcontacts"
	"github.com/involvex/warelay/internal/hub"
	"github.com/involvex/warelay/internal/lifecycle"
	"github.com/involvex/warelay/internal/mirror"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/scheduler"
	"github.com/involvex/warelay/internal/store"
)

// Service wires the HTTP surface to the daemon's services.
type Service struct {
	mirror    *mirror.Service
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
	cache     *cache.Cache
	db        *store.DB
	gcontacts *gcontacts.Client
	generator ai.Generator
	hub       *hub.Hub
	logger    *zap.Logger
}

// New creates the API service.
func New(m *mirror.Service, lc *lifecycle.Manager, sched *scheduler.Scheduler, c *cache.Cache, db *store.DB, gc *gcontacts.Client, g ai.Generator, h *hub.Hub, logger *zap.Logger) *Service {
	return &Service{
		mirror:    m,
		lifecycle: lc,
		scheduler: sched,
		cache:     c,
		db:        db,
		gcontacts: gc,
		generator: g,
		hub:       h,
		logger:    logger,
	}
}

// Register mounts every route.
func (s *Service) Register(e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/chats", s.getChats)
	api.GET("/contacts", s.getContacts)
	api.GET("/chat/:chatId", s.getChat)
	api.GET("/chat-details/:chatId", s.getChatDetails)
	api.GET("/contact-groups/:contactId", s.getContactGroups)
	api.GET("/media/:chatId/:messageId", s.getMedia)
	api.POST("/send-message", s.sendMessage)
	api.POST("/generate-ai", s.generateAI)
	api.GET("/cache/stats", s.getCacheStats)
	api.POST("/cache/clear", s.clearCache)
	api.POST("/sync-google-contacts", s.syncGoogleContacts)
	api.POST("/schedule-message", s.scheduleMessage)
	api.GET("/scheduled-messages", s.listScheduled)
	api.DELETE("/scheduled-messages/:id", s.removeScheduled)
	api.GET("/prefs/pinned-chats", s.getPinnedChats)
	api.POST("/prefs/pinned-chats", s.setPinnedChat)
	api.GET("/prefs/last-chat", s.getLastChat)
	api.PUT("/prefs/last-chat", s.setLastChat)

	e.GET("/ws", echo.WrapHandler(http.HandlerFunc(s.hub.HandleWS)))
}

// fail logs the real error and answers with a generic message.
func (s *Service) fail(c echo.Context, message string, err error) error {
	s.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func (s *Service) getChats(c echo.Context) error {
	chats, err := s.mirror.Chats(c.Request().Context())
	if err != nil {
		return s.fail(c, "Failed to load chats", err)
	}
	return c.JSON(http.StatusOK, chats)
}

func (s *Service) getContacts(c echo.Context) error {
	contacts, err := s.mirror.Contacts(c.Request().Context())
	if err != nil {
		return s.fail(c, "Failed to load contacts", err)
	}
	return c.JSON(http.StatusOK, contacts)
}

func (s *Service) getChat(c echo.Context) error {
	msgs, err := s.mirror.Messages(c.Request().Context(), c.Param("chatId"))
	if err != nil {
		return s.fail(c, "Failed to load messages", err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Service) getChatDetails(c echo.Context) error {
	details, err := s.mirror.ChatDetails(c.Request().Context(), c.Param("chatId"))
	if err != nil {
		return s.fail(c, "Failed to load chat details", err)
	}
	return c.JSON(http.StatusOK, details)
}

func (s *Service) getContactGroups(c echo.Context) error {
	groups, err := s.mirror.ContactGroups(c.Request().Context(), c.Param("contactId"))
	if err != nil {
		return s.fail(c, "Failed to load contact groups", err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (s *Service) getMedia(c echo.Context) error {
	ref, err := s.mirror.Media(c.Request().Context(), c.Param("chatId"), c.Param("messageId"))
	if err != nil {
		return s.fail(c, "Failed to load media", err)
	}
	return c.JSON(http.StatusOK, ref)
}

type sendMessageRequest struct {
	ChatID    string `json:"chatId"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	MediaData string `json:"mediaData"`
	Mimetype  string `json:"mimetype"`
	Filename  string `json:"filename"`
}

type sendMessageResponse struct {
	Success bool                 `json:"success"`
	Message *model.MessageRecord `json:"message"`
}

func (s *Service) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ChatID == "" {
		return badRequest(c, "chatId is required")
	}

	ctx := c.Request().Context()
	var rec *model.MessageRecord
	var err error

	if req.MediaData != "" {
		media := &model.MediaRef{
			Mimetype: req.Mimetype,
			Filename: req.Filename,
			Data:     req.MediaData,
		}
		if media.Mimetype == "" {
			media.Mimetype = defaultMimetype(req.Type)
		}
		rec, err = s.lifecycle.SendMedia(ctx, req.ChatID, media, req.Message)
	} else {
		if req.Message == "" {
			return badRequest(c, "message is required")
		}
		rec, err = s.lifecycle.SendText(ctx, req.ChatID, req.Message)
	}
	if err != nil {
		s.logger.Error("send failed", zap.String("chat_id", req.ChatID), zap.Error(err))
		// The failed record is part of the answer: the client renders it
		// inline and offers retry.
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":   "Failed to send message",
			"message": rec,
		})
	}
	return c.JSON(http.StatusOK, sendMessageResponse{Success: true, Message: rec})
}

func defaultMimetype(msgType string) string {
	switch msgType {
	case "image":
		return "image/jpeg"
	case "audio":
		return "audio/ogg; codecs=opus"
	default:
		return "application/octet-stream"
	}
}

type generateAIRequest struct {
	ChatID   string `json:"chatId"`
	Message  string `json:"message"`
	Context  string `json:"context"`
	Language string `json:"language"`
}

func (s *Service) generateAI(c echo.Context) error {
	var req generateAIRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Message == "" {
		return badRequest(c, "message is required")
	}

	ctx := c.Request().Context()
	history, err := s.mirror.Messages(ctx, req.ChatID)
	if err != nil {
		s.logger.Warn("history read failed for suggestion request", zap.Error(err))
	}

	suggestions, err := ai.Suggest(ctx, s.generator, ai.SuggestRequest{
		Message:  req.Message,
		Context:  req.Context,
		Language: req.Language,
		History:  history,
	})
	if err != nil {
		return s.fail(c, "Failed to generate AI responses", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"responses": suggestions.Options,
		"kind":      suggestions.Kind,
	})
}

func (s *Service) getCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

type clearCacheRequest struct {
	Type string `json:"type"`
}

func (s *Service) clearCache(c echo.Context) error {
	var req clearCacheRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.Type == "" {
		s.cache.ClearAll()
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
	ns := cache.Namespace(req.Type)
	if !cache.Known(ns) {
		return badRequest(c, "unknown cache type")
	}
	s.cache.Clear(ns)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type syncGoogleContactsRequest struct {
	AccessToken string `json:"accessToken"`
}

func (s *Service) syncGoogleContacts(c echo.Context) error {
	var req syncGoogleContactsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AccessToken == "" {
		return badRequest(c, "accessToken is required")
	}

	ctx := c.Request().Context()
	contacts, err := s.mirror.Contacts(ctx)
	if err != nil {
		return s.fail(c, "Failed to sync Google Contacts", err)
	}
	report, err := s.gcontacts.Sync(ctx, req.AccessToken, contacts)
	if err != nil {
		return s.fail(c, "Failed to sync Google Contacts", err)
	}
	return c.JSON(http.StatusOK, report)
}

type scheduleMessageRequest struct {
	ChatID       string `json:"chatId"`
	Message      string `json:"message"`
	ScheduledFor int64  `json:"scheduledFor"`
}

func (s *Service) scheduleMessage(c echo.Context) error {
	var req scheduleMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	m, err := s.scheduler.Add(req.ChatID, req.Message, time.UnixMilli(req.ScheduledFor))
	if err != nil {
		// Validation failures are the caller's to fix, synchronously.
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Service) listScheduled(c echo.Context) error {
	queue, err := s.scheduler.List()
	if err != nil {
		return s.fail(c, "Failed to load scheduled messages", err)
	}
	if queue == nil {
		queue = []model.ScheduledMessage{}
	}
	return c.JSON(http.StatusOK, queue)
}

func (s *Service) removeScheduled(c echo.Context) error {
	if err := s.scheduler.Remove(c.Param("id")); err != nil {
		return s.fail(c, "Failed to remove scheduled message", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) getPinnedChats(c echo.Context) error {
	pinned, err := s.db.PinnedChats()
	if err != nil {
		return s.fail(c, "Failed to load pinned chats", err)
	}
	if pinned == nil {
		pinned = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"pinned": pinned})
}

type pinChatRequest struct {
	ChatID string `json:"chatId"`
	Pinned bool   `json:"pinned"`
}

func (s *Service) setPinnedChat(c echo.Context) error {
	var req pinChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ChatID == "" {
		return badRequest(c, "chatId is required")
	}

	var err error
	if req.Pinned {
		err = s.db.PinChat(req.ChatID)
	} else {
		err = s.db.UnpinChat(req.ChatID)
	}
	if err != nil {
		return s.fail(c, "Failed to update pinned chats", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) getLastChat(c echo.Context) error {
	chatID, err := s.db.LastChat()
	if err != nil {
		return s.fail(c, "Failed to load last chat", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"chatId": chatID})
}

type lastChatRequest struct {
	ChatID string `json:"chatId"`
}

func (s *Service) setLastChat(c echo.Context) error {
	var req lastChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.db.SetLastChat(req.ChatID); err != nil {
		return s.fail(c, "Failed to store last chat", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
