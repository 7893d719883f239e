// handlers/auth_handler.go
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"auditmgt/middleware"
	"auditmgt/models"
	"auditmgt/store"
	"auditmgt/utils"
	"auditmgt/validation"
)

type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	GenerateJWT(userID, name, email string) (string, error)
}

// dummyHash keeps the failed-lookup path as slow as a real password check.
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO5oI3bDRS3PuzjuH1Fb0aF9yT1CGMH1W"

type AuthHandler struct {
	users  UserStore
	tokens TokenIssuer
	logger *slog.Logger
}

func NewAuthHandler(users UserStore, tokens TokenIssuer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req validation.RegisterRequest
	if errs := validation.Decode(r.Body, &req); errs != nil {
		utils.RespondWithValidation(w, errs)
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "hash password", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	user, err := h.users.Create(ctx, req.Name, req.Email, hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		utils.RespondWithError(w, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create user", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.logger.DebugContext(r.Context(), "login handled", "duration", time.Since(start))
	}()

	var req validation.LoginRequest
	if errs := validation.Decode(r.Body, &req); errs != nil {
		utils.RespondWithValidation(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	user, err := h.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		_ = utils.CheckPasswordHash(req.Password, dummyHash)
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "find user for login", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Authentication service unavailable")
		return
	}

	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	user, err := h.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load current user", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, code int, user *models.User) {
	token, err := h.tokens.GenerateJWT(user.ID.Hex(), user.Name, user.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "generate token", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate authentication token")
		return
	}
	utils.RespondWithJSON(w, code, authResponse{Token: token, User: user})
}
