package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bhieu79/Torilab-backend-test/internal/store"
)

// History pagination bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// HistoryHandlers holds dependencies for the chat history endpoint.
type HistoryHandlers struct {
	store  store.Store
	logger *slog.Logger
}

// NewHistoryHandlers creates a new HistoryHandlers instance.
func NewHistoryHandlers(st store.Store, logger *slog.Logger) *HistoryHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandlers{store: st, logger: logger}
}

// historyResponse is the success envelope for the history endpoint.
type historyResponse struct {
	Status     string                 `json:"status"`
	Data       []store.HistoryMessage `json:"data"`
	Pagination pagination             `json:"pagination"`
}

type pagination struct {
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

type historyError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GetChatHistory handles GET /chat-history/{clientID}.
// Supports limit (1-100, default 50) and offset query parameters.
func (h *HistoryHandlers) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID := r.PathValue("clientID")
	if clientID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Client ID is required")
		return
	}

	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	total, err := h.store.CountMessages(ctx, clientID)
	if err != nil {
		h.writeFailure(w, ctx, err)
		return
	}

	history, err := h.store.History(ctx, clientID, limit, offset)
	if err != nil {
		h.writeFailure(w, ctx, err)
		return
	}

	response := historyResponse{
		Status: "success",
		Data:   history,
		Pagination: pagination{
			Total:   total,
			Offset:  offset,
			Limit:   limit,
			HasMore: offset+limit < total,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(ctx, "failed to encode history response", "error", err)
	}
}

func (h *HistoryHandlers) writeFailure(w http.ResponseWriter, ctx context.Context, err error) {
	slog.ErrorContext(ctx, "error retrieving chat history", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(historyError{
		Status:  "error",
		Message: "Failed to retrieve chat history",
	})
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, key string, def int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return i
}
