package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tickethub/internal/security"
)

type TokenIssuer interface {
	GenerateAdminToken(subject string) (string, error)
}

// AuthHandler exchanges the operator password for an admin bearer token.
type AuthHandler struct {
	tokens       TokenIssuer
	passwordHash string
}

func NewAuthHandler(tokens TokenIssuer, passwordHash string) *AuthHandler {
	return &AuthHandler{tokens: tokens, passwordHash: passwordHash}
}

type loginRequest struct {
	Subject  string `json:"subject" binding:"required,max=64"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if err := security.CheckPassword(h.passwordHash, req.Password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			_ = ctx.Error(err)
		}
		RespondError(ctx, http.StatusUnauthorized, "invalid_credentials", "Password is incorrect.", nil)
		return
	}

	tok, err := h.tokens.GenerateAdminToken(req.Subject)
	if err != nil {
		RespondInternal(ctx, "Could not issue token", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"accessToken": tok, "tokenType": "Bearer"})
}
