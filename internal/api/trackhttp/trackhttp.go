package trackhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/PackTrace/internal/services/auth"
	"github.com/BearBump/PackTrace/internal/services/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Handler struct {
	trackings *tracking.Service
	auth      *auth.Service
	log       *slog.Logger
}

func New(trackings *tracking.Service, authSvc *auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{trackings: trackings, auth: authSvc, log: log}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.optionalAuth)
			r.Post("/track", h.track)
		})

		r.Get("/track/{trackingNumber}", h.latest)
		r.Get("/track/history/{trackingNumber}", h.history)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/saved", h.saved)
		})
	})

	return r
}

type ctxKey int

const userIDKey ctxKey = 0

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// optionalAuth — отсутствие заголовка означает анонимный вызов, это не
// ошибка. Невалидный токен — ошибка: молча даунгрейдить до анонима нельзя.
func (h *Handler) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, ok := h.verifyBearer(w, header)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeMessage(w, http.StatusUnauthorized, "Authorization header missing")
			return
		}
		userID, ok := h.verifyBearer(w, header)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (h *Handler) verifyBearer(w http.ResponseWriter, header string) (string, bool) {
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || token == header {
		writeMessage(w, http.StatusUnauthorized, "Token missing")
		return "", false
	}
	userID, err := h.auth.VerifyToken(token)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
		return "", false
	}
	return userID, true
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.auth.Register(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "User registered successfully",
			"data":    map[string]string{"id": u.ID, "email": u.Email},
		})
	case errors.Is(err, auth.ErrEmailRequired), errors.Is(err, auth.ErrPasswordRequired):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "Email is already in use")
	default:
		h.internalError(w, r, err, "register")
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	default:
		h.internalError(w, r, err, "login")
	}
}

type trackRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Alias          string `json:"alias"`
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	info, err := h.trackings.Track(r.Context(), tracking.TrackInput{
		TrackingNumber: req.TrackingNumber,
		Alias:          req.Alias,
		UserID:         userIDFrom(r.Context()),
	})

	var notFound *tracking.NotFoundAtCarrierError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Tracking information retrieved successfully",
			"data":    info,
		})
	case errors.Is(err, tracking.ErrEmptyTrackingNumber):
		writeMessage(w, http.StatusBadRequest, "Tracking number is required")
	case errors.Is(err, tracking.ErrUnknownCarrier):
		writeMessage(w, http.StatusBadRequest, "Unknown carrier for this tracking number format.")
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message":        notFound.Message,
			"carrier":        notFound.Carrier,
			"trackingNumber": req.TrackingNumber,
		})
	case errors.Is(err, tracking.ErrRateLimited):
		writeMessage(w, http.StatusServiceUnavailable, "Carrier lookups are temporarily throttled. Please try again later.")
	default:
		h.internalError(w, r, err, "track")
	}
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	trackingNumber := chi.URLParam(r, "trackingNumber")

	view, err := h.trackings.Latest(r.Context(), trackingNumber)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Cached tracking information retrieved successfully",
			"data":    view,
		})
	case errors.Is(err, tracking.ErrEmptyTrackingNumber):
		writeMessage(w, http.StatusBadRequest, "Tracking number is required")
	case errors.Is(err, tracking.ErrNoHistory):
		writeMessage(w, http.StatusNotFound, "No cached tracking information found for this number.")
	default:
		h.internalError(w, r, err, "latest")
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	trackingNumber := chi.URLParam(r, "trackingNumber")

	events, err := h.trackings.History(r.Context(), trackingNumber)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Tracking history retrieved successfully",
			"data":    events,
		})
	case errors.Is(err, tracking.ErrEmptyTrackingNumber):
		writeMessage(w, http.StatusBadRequest, "Tracking number is required")
	case errors.Is(err, tracking.ErrNoHistory):
		writeMessage(w, http.StatusNotFound, "No tracking history found for this number.")
	default:
		h.internalError(w, r, err, "history")
	}
}

func (h *Handler) saved(w http.ResponseWriter, r *http.Request) {
	list, err := h.trackings.SavedTrackings(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.internalError(w, r, err, "saved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Saved trackings retrieved successfully",
		"data":    list,
	})
}

// internalError логирует детали, наружу уходит только общий ответ.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, stage string) {
	h.log.Error("request failed", "stage", stage, "path", r.URL.Path, "err", err)
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
