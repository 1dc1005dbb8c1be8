package api

import (
	"bot-controller-go/internal/controller"
	"bot-controller-go/internal/metrics"
	"bot-controller-go/internal/models"
	"bot-controller-go/internal/reporter"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	stopTimeout  = 30 * time.Second
)

// BotController is the part of the controller the HTTP layer drives.
type BotController interface {
	StartBot(ctx context.Context, def models.BotDefinition) (*controller.BotInstance, error)
	StopBot(ctx context.Context, botID string) error
	StopAllBots(ctx context.Context) error
	GetActiveBots() []*controller.BotInstance
	GetBotInstance(botID string) (*controller.BotInstance, bool)
	GetStats() controller.Stats
	PendingRestores() []*models.RunState
}

type Handler struct {
	ctrl     BotController
	ws       http.Handler
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler wires the controller API. ws may be nil to disable /ws.
func NewHandler(ctrl BotController, ws http.Handler, logger *zap.Logger) *Handler {
	return &Handler{
		ctrl:     ctrl,
		ws:       ws,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Routes builds the router. allowedOrigins feeds CORS; empty allows any origin.
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/bots", h.StartBot)
		r.Get("/bots", h.ListBots)
		r.Post("/bots/stop-all", h.StopAllBots)
		r.Get("/bots/pending", h.PendingRestores)
		r.Get("/bots/{id}", h.GetBot)
		r.Delete("/bots/{id}", h.StopBot)
		r.Get("/stats", h.Stats)
	})

	if h.ws != nil {
		r.Handle("/ws", h.ws)
	}
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

func (h *Handler) StartBot(w http.ResponseWriter, r *http.Request) {
	var def models.BotDefinition
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&def); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON format: "+err.Error())
		return
	}
	if err := h.validate.Struct(def); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	inst, err := h.ctrl.StartBot(r.Context(), def)
	if err != nil {
		var (
			already *controller.AlreadyRunningError
			conn    *controller.ExchangeConnectionError
		)
		switch {
		case errors.As(err, &already):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &conn):
			h.writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, controller.ErrShutdown):
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("start bot failed", zap.String("bot_id", def.ID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, inst.Info())
}

func (h *Handler) StopBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	if err := h.ctrl.StopBot(ctx, id); err != nil {
		var notRunning *controller.NotRunningError
		if errors.As(err, &notRunning) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("stop bot failed", zap.String("bot_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StopAllBots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	before := len(h.ctrl.GetActiveBots())
	if err := h.ctrl.StopAllBots(ctx); err != nil {
		h.logger.Error("stop all bots failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"stopped": before})
}

func (h *Handler) ListBots(w http.ResponseWriter, r *http.Request) {
	bots := h.ctrl.GetActiveBots()
	out := make([]controller.BotInfo, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.Info())
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, ok := h.ctrl.GetBotInstance(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "bot "+id+" is not running")
		return
	}
	h.writeJSON(w, http.StatusOK, inst.Info())
}

func (h *Handler) PendingRestores(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.PendingRestores())
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.ctrl.GetStats()
	if r.URL.Query().Get("format") != "table" {
		h.writeJSON(w, http.StatusOK, stats)
		return
	}

	bots := h.ctrl.GetActiveBots()
	infos := make([]controller.BotInfo, 0, len(bots))
	for _, b := range bots {
		infos = append(infos, b.Info())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(reporter.Render(infos, stats, h.now()) + "\n"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		if e.Tag() == "required" {
			msgs = append(msgs, field+" is required")
		} else {
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
