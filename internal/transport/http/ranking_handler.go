package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/auth"
	"history-ranking-service/internal/domain"
)

type RankingHandler struct {
	service      *app.RankingService
	log          *zap.Logger
	defaultLimit int
}

func NewRankingHandler(service *app.RankingService, logger *zap.Logger, defaultLimit int) *RankingHandler {
	return &RankingHandler{service: service, log: logger, defaultLimit: defaultLimit}
}

type attemptsRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxAttemptsBody bounds a submission; a full card is a few kilobytes.
const maxAttemptsBody = 64 << 10

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// GetRanking serves the leaderboard of a card. The viewer is optional.
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	query, err := rankingQuery(r, h.defaultLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.ComputeRanking(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PostAttempts records one pass of answers for the authenticated viewer.
func (h *RankingHandler) PostAttempts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttemptsBody)
	var req attemptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	cardID := domain.CardID(mux.Vars(r)["cardID"])
	result, err := h.service.RecordAttempts(r.Context(), auth.ViewerFrom(r.Context()), cardID, req.Answers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *RankingHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("ranking request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// rankingQuery builds a query from path vars and the window/limit parameters.
// The card id comes from the route or, for websocket upgrades, the cardId parameter.
func rankingQuery(r *http.Request, defaultLimit int) (app.RankingQuery, error) {
	values := r.URL.Query()
	cardID := mux.Vars(r)["cardID"]
	if cardID == "" {
		cardID = values.Get("cardId")
	}
	window, err := domain.ParseRankingWindow(values.Get("window"))
	if err != nil {
		return app.RankingQuery{}, err
	}
	limit := defaultLimit
	if raw := values.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return app.RankingQuery{}, errInvalidLimit
		}
	}
	return app.RankingQuery{
		CardID: domain.CardID(cardID),
		Viewer: auth.ViewerFrom(r.Context()),
		Window: window,
		Limit:  limit,
	}, nil
}

func statusFor(err error) int {
	var dep *domain.DependencyError
	switch {
	case errors.Is(err, domain.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrViewerRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrEmptySubmission),
		errors.Is(err, domain.ErrDuplicateAnswer),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, errInvalidLimit):
		return http.StatusBadRequest
	case errors.As(err, &dep):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
