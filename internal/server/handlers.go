package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PedroFlores1996/democrasite/internal/topics"
	"github.com/PedroFlores1996/democrasite/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleCreateTopic(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createTopicRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.topicsService.CreateTopic(c.Request.Context(), user, request.toInput())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTopicPayload(view))
}

func (h *httpHandler) handleSearchTopics(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	page, err := optionalInt(c.Query("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	limit, err := optionalInt(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}
	sortOrder, err := topics.ParseSortOrder(c.Query("sort"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	query := topics.SearchQuery{
		Title: c.Query("title"),
		Tags:  splitTags(c.Query("tags")),
		Sort:  sortOrder,
		Page:  page,
		Limit: limit,
	}
	result, err := h.topicsService.SearchTopics(c.Request.Context(), user, query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponsePayload{
		Topics:  newTopicSummaryPayloads(result.Topics),
		Total:   result.Total,
		Page:    result.Page,
		Limit:   result.Limit,
		HasNext: result.HasNext,
		HasPrev: result.HasPrev,
	})
}

func (h *httpHandler) handleViewTopic(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	details, err := h.topicsService.ViewTopic(c.Request.Context(), user, code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTopicDetailsPayload(details, user))
}

func (h *httpHandler) handleSubmitVote(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	var request voteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if _, err := h.topicsService.SubmitVote(c.Request.Context(), user, code, request.Choices); err != nil {
		h.respondError(c, err)
		return
	}
	details, err := h.topicsService.ViewTopic(c.Request.Context(), user, code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTopicDetailsPayload(details, user))
}

func (h *httpHandler) handleAppendAnswer(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	var request appendAnswerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.topicsService.AppendAnswer(c.Request.Context(), user, code, request.Option)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTopicPayload(view))
}

func (h *httpHandler) handleUpdateDescription(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	var request descriptionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.topicsService.UpdateDescription(c.Request.Context(), user, code, request.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTopicPayload(view))
}

func (h *httpHandler) handleUpdateTags(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	var request tagsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.topicsService.UpdateTags(c.Request.Context(), user, code, request.Tags)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTopicPayload(view))
}

func (h *httpHandler) handleDeleteTopic(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	summary, err := h.topicsService.DeleteTopic(c.Request.Context(), user, code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deletionPayload{
		BallotsRemoved:   summary.BallotsRemoved,
		GrantsRemoved:    summary.GrantsRemoved,
		FavoritesRemoved: summary.FavoritesRemoved,
	})
}

func (h *httpHandler) handleListParticipants(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	participants, err := h.topicsService.ListParticipants(c.Request.Context(), user, code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	usernames := make([]string, 0, len(participants))
	for _, participant := range participants {
		usernames = append(usernames, participant.Username)
	}
	displayNames, err := h.users.DisplayNames(c.Request.Context(), usernames)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]participantPayload, 0, len(participants))
	for _, participant := range participants {
		choices := participant.Choices
		if choices == nil {
			choices = []string{}
		}
		payload = append(payload, participantPayload{
			Username:    participant.Username,
			DisplayName: displayNames[participant.Username],
			GrantedAt:   participant.GrantedAt,
			Choices:     choices,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": payload})
}

// handleRevokeAccess removes users from a private topic. A participant naming
// only themselves leaves the topic; any other request is the creator's bulk
// removal, with usernames that never signed in reported as not found.
func (h *httpHandler) handleRevokeAccess(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	var request removeUsersRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rawNames := request.Usernames
	if strings.TrimSpace(request.Username) != "" {
		rawNames = append(rawNames, request.Username)
	}
	if len(rawNames) == 0 {
		h.respondError(c, fmt.Errorf("%w: at least one username is required", topics.ErrValidation))
		return
	}
	targets := make([]topics.Username, 0, len(rawNames))
	for _, raw := range rawNames {
		target, err := topics.NewUsername(raw)
		if err != nil {
			h.respondError(c, err)
			return
		}
		targets = append(targets, target)
	}

	ctx := c.Request.Context()
	if len(targets) == 1 && targets[0] == user {
		summary, err := h.topicsService.RevokeAccess(ctx, user, code, user)
		if err != nil {
			h.respondError(c, err)
			return
		}
		payload := removeUsersPayload{RemovedUsers: []string{}, NotFoundUsers: []string{}}
		if summary.GrantRemoved {
			payload.RemovedUsers = append(payload.RemovedUsers, user.String())
		}
		if summary.BallotRemoved {
			payload.VotesRemoved = 1
		}
		c.JSON(http.StatusOK, payload)
		return
	}

	known := make([]topics.Username, 0, len(targets))
	notFound := []string{}
	for _, target := range targets {
		_, err := h.users.Lookup(ctx, target)
		if errors.Is(err, users.ErrUnknownUser) {
			notFound = append(notFound, target.String())
			continue
		}
		if err != nil {
			h.respondError(c, err)
			return
		}
		known = append(known, target)
	}

	summary, err := h.topicsService.RemoveUsers(ctx, user, code, known)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, removeUsersPayload{
		RemovedUsers:  summary.RemovedUsers,
		NotFoundUsers: notFound,
		VotesRemoved:  summary.VotesRemoved,
	})
}

func (h *httpHandler) handleListFavorites(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	favorites, err := h.topicsService.ListFavorites(c.Request.Context(), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": newTopicSummaryPayloads(favorites)})
}

func (h *httpHandler) handleAddFavorite(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	if err := h.topicsService.AddFavorite(c.Request.Context(), user, code); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, favoritePayload{ShareCode: code.String(), Favorited: true})
}

func (h *httpHandler) handleRemoveFavorite(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	if err := h.topicsService.RemoveFavorite(c.Request.Context(), user, code); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, favoritePayload{ShareCode: code.String(), Favorited: false})
}

func (h *httpHandler) handleToggleFavorite(c *gin.Context) {
	user, code, ok := h.topicRequest(c)
	if !ok {
		return
	}
	favorited, err := h.topicsService.ToggleFavorite(c.Request.Context(), user, code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, favoritePayload{ShareCode: code.String(), Favorited: favorited})
}

// topicRequest extracts the caller and the share code path parameter. It
// writes the error response itself when either is unusable.
func (h *httpHandler) topicRequest(c *gin.Context) (topics.Username, topics.ShareCode, bool) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", "", false
	}
	code, err := topics.ParseShareCode(c.Param("share_code"))
	if err != nil {
		h.respondError(c, err)
		return "", "", false
	}
	return user, code, true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, kind := classifyError(err)
	payload := gin.H{"error": kind}

	var serviceErr *topics.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		payload["message"] = "internal error"
	} else {
		payload["message"] = err.Error()
	}
	c.JSON(status, payload)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, topics.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, topics.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, topics.ErrInvalidChoice):
		return http.StatusBadRequest, "invalid_choice"
	case errors.Is(err, topics.ErrTooManyChoices):
		return http.StatusBadRequest, "too_many_choices"
	case errors.Is(err, topics.ErrDuplicateAnswer):
		return http.StatusBadRequest, "duplicate_answer"
	case errors.Is(err, topics.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func optionalInt(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
