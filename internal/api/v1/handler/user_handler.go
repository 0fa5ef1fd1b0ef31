package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"studyon/internal/api/v1/dto"
	"studyon/internal/billing"
	"studyon/internal/middleware"
	"studyon/internal/service"
	"studyon/internal/session"
)

type UserHandler struct {
	userService service.UserService
	txService   service.TransactionService
	store       middleware.SessionStore
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewUserHandler(userService service.UserService, txService service.TransactionService, store middleware.SessionStore, v *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		txService:   txService,
		store:       store,
		validate:    v,
		logger:      logger.With().Str("handler", "UserHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 auth and profile routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/logout", h.logout)
	mux.Handle("GET /profile", authMw(http.HandlerFunc(h.getProfile)))
	mux.Handle("GET /profile/transactions", authMw(http.HandlerFunc(h.getTransactions)))
}

// login godoc
// @Summary Sign in
// @Description Authenticates against billing and stores the token pair in the session cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body dto.LoginDTO true "Credentials"
// @Success 200 {object} dto.SessionResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /auth/login [post]
func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, billing.ErrUnauthorized) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to sign in")
		return
	}
	h.startSession(w, r, s, http.StatusOK)
}

// register godoc
// @Summary Register
// @Description Creates a billing account and signs the new user in.
// @Tags auth
// @Accept json
// @Produce json
// @Param registration body dto.RegisterDTO true "Registration"
// @Success 201 {object} dto.SessionResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 409 {string} string "Rejected by billing"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /auth/register [post]
func (h *UserHandler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.userService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to register")
		return
	}
	h.startSession(w, r, s, http.StatusCreated)
}

func (h *UserHandler) startSession(w http.ResponseWriter, r *http.Request, s *session.Session, status int) {
	if err := h.store.Save(w, r, s); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save session")
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, dto.SessionResponseDTO{
		Username:  s.Claims.Username,
		Roles:     s.Claims.Roles,
		ExpiresAt: s.Claims.ExpiresAt.Unix(),
	})
}

// logout godoc
// @Summary Sign out
// @Tags auth
// @Success 204
// @Router /auth/logout [post]
func (h *UserHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(w, r); err != nil {
		h.logger.Error().Err(err).Msg("Failed to clear session")
	}
	w.WriteHeader(http.StatusNoContent)
}

// getProfile godoc
// @Summary Current user
// @Description Returns the billing profile of the signed in user, including the balance.
// @Tags profile
// @Produce json
// @Success 200 {object} dto.ProfileResponseDTO
// @Failure 401 {string} string "Unauthorized"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /profile [get]
func (h *UserHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	p, err := h.userService.Profile(r.Context(), s)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, dto.ProfileResponseDTO{Username: p.Username, Balance: p.Balance, Roles: p.Roles})
}

// getTransactions godoc
// @Summary Transaction history
// @Description Lists billing transactions, each joined with the local course it refers to.
// @Tags profile
// @Produce json
// @Success 200 {array} model.TransactionView
// @Failure 401 {string} string "Unauthorized"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /profile/transactions [get]
func (h *UserHandler) getTransactions(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	txs, err := h.txService.History(r.Context(), s)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to load transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
