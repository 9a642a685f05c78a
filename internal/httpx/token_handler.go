package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"go.uber.org/zap"
)

// TokenHandler issues tokens for any user id and role. It is only mounted
// when dev tokens are enabled.
type TokenHandler struct {
	tokens *auth.Tokens
	log    *zap.Logger
}

type TokenReq struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type TokenResp struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request) {
	var req TokenReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok || req.UserID == "" {
		badRequest(w, "user_id and a known role are required")
		return
	}
	tok, exp, err := h.tokens.Issue(auth.Identity{UserID: req.UserID, Role: role})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("dev token issued", zap.String("user_id", req.UserID), zap.String("role", req.Role))
	writeJSON(w, http.StatusOK, TokenResp{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp})
}
