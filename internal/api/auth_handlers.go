package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/example/btc-guess/internal/api/middleware"
	"github.com/example/btc-guess/internal/auth"
	"github.com/example/btc-guess/internal/domain/user"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	userService *user.Service
	jwtService  *auth.JWTService
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(userService *user.Service, jwtService *auth.JWTService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		jwtService:  jwtService,
		validate:    newValidator(),
		logger:      logger.Named("auth"),
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Score     *int      `json:"score,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *user.User, withScore bool) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if withScore {
		score := u.Score
		resp.Score = &score
	}
	return resp
}

// Register handles user registration
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	newUser, err := h.userService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			respondJSONError(w, "Username already exists", http.StatusConflict)
		case errors.Is(err, user.ErrInvalidUsername),
			errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordTooLong):
			respondJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to register user", zap.String("username", req.Username), zap.Error(err))
			respondJSONError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("user registered", zap.String("user_id", newUser.ID), zap.String("username", newUser.Username))
	h.respondWithToken(w, r, http.StatusCreated, newUser)
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondJSONError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("failed to authenticate user", zap.String("username", req.Username), zap.Error(err))
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, u)
}

// Me returns the current authenticated user's information, score included
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := h.userService.FindByID(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("failed to load user", zap.String("user_id", claims.UserID), zap.Error(err))
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if u == nil {
		respondJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(u, true))
}

// Helper methods

func (h *AuthHandlers) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(u.ID, u.Username)
	if err != nil {
		h.logger.Error("failed to sign access token", zap.String("user_id", u.ID), zap.Error(err))
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	respondJSON(w, status, AuthResponse{
		AccessToken: accessToken,
		User:        toUserResponse(u, false),
	})
}
