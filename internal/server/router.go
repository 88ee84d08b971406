package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/PedroFlores1996/democrasite/internal/auth"
	"github.com/PedroFlores1996/democrasite/internal/topics"
	"github.com/PedroFlores1996/democrasite/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const usernameContextKey = "democrasite_username"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserRegistry     = errors.New("user registry dependency required")
	errMissingTopicsService    = errors.New("topics service dependency required")
)

// SessionValidator authenticates an incoming request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserRegistry turns validated claims into the username the engine acts for
// and answers questions about users it has seen.
type UserRegistry interface {
	Register(ctx context.Context, claims auth.SessionClaims) (topics.Username, error)
	Lookup(ctx context.Context, username topics.Username) (users.User, error)
	DisplayNames(ctx context.Context, usernames []string) (map[string]string, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserRegistry
	TopicsService    *topics.Service
	AllowedOrigins   []string
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserRegistry
	}
	if deps.TopicsService == nil {
		return nil, errMissingTopicsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.SessionValidator,
		users:         deps.Users,
		topicsService: deps.TopicsService,
		logger:        logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)

	api.POST("/topics", handler.handleCreateTopic)
	api.GET("/topics", handler.handleSearchTopics)
	api.GET("/topics/:share_code", handler.handleViewTopic)
	api.DELETE("/topics/:share_code", handler.handleDeleteTopic)
	api.POST("/topics/:share_code/votes", handler.handleSubmitVote)
	api.POST("/topics/:share_code/options", handler.handleAppendAnswer)
	api.PATCH("/topics/:share_code/description", handler.handleUpdateDescription)
	api.PATCH("/topics/:share_code/tags", handler.handleUpdateTags)
	api.GET("/topics/:share_code/users", handler.handleListParticipants)
	api.DELETE("/topics/:share_code/users", handler.handleRevokeAccess)

	api.GET("/favorites", handler.handleListFavorites)
	api.POST("/favorites/:share_code", handler.handleAddFavorite)
	api.DELETE("/favorites/:share_code", handler.handleRemoveFavorite)
	api.POST("/favorites/:share_code/toggle", handler.handleToggleFavorite)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions      SessionValidator
	users         UserRegistry
	topicsService *topics.Service
	logger        *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	username, err := h.users.Register(c.Request.Context(), claims)
	if errors.Is(err, users.ErrInvalidIdentity) {
		h.logger.Warn("session subject rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("user registration failed", zap.Error(err), zap.String("subject", claims.Subject))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.Set(usernameContextKey, username.String())
	c.Next()
}

// currentUser returns the username placed by authorizeRequest.
func currentUser(c *gin.Context) (topics.Username, bool) {
	raw := c.GetString(usernameContextKey)
	if raw == "" {
		return "", false
	}
	return topics.Username(raw), true
}
