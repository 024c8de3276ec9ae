// Package api - Authentication Handlers
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterRequest is the signup request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	hash, err := h.Auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "WEAK_PASSWORD")
		return
	}

	user, err := h.Store.CreateUser(strings.ToLower(req.Username), strings.ToLower(req.Email), hash)
	if err != nil {
		respondError(c, http.StatusConflict, "Username or email already taken", "USER_EXISTS")
		return
	}

	token, err := h.Auth.IssueToken(user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to issue token", "TOKEN_ERROR")
		return
	}

	c.JSON(http.StatusCreated, StandardResponse{
		Success: true,
		Data: gin.H{
			"user":  user,
			"token": token,
		},
	})
}

// Login handles user authentication.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	user, err := h.Store.UserByUsername(strings.ToLower(req.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
			return
		}
		respondError(c, http.StatusInternalServerError, "Login failed", "DATABASE_ERROR")
		return
	}

	if err := h.Auth.CheckPassword(req.Password, user.PasswordHash); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
		return
	}

	token, err := h.Auth.IssueToken(user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to issue token", "TOKEN_ERROR")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{
			"user":  user,
			"token": token,
		},
	})
}
