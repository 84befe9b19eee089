package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/auth"
)

// AuthInfoHandler serves the authenticated-user endpoint. Sign-in and
// token refresh live on Supabase's hosted auth; the backend only
// reflects what the verified token says, enriched through the admin
// API when available.
type AuthInfoHandler struct {
	supabase *auth.SupabaseClient
}

// NewAuthInfoHandler creates the auth info handler.
func NewAuthInfoHandler(supabase *auth.SupabaseClient) *AuthInfoHandler {
	return &AuthInfoHandler{supabase: supabase}
}

// Me handles GET /api/auth/me.
func (h *AuthInfoHandler) Me(c *gin.Context) {
	user, ok := auth.GetCurrentUser(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	if h.supabase != nil {
		if full, err := h.supabase.GetUserByID(c.Request.Context(), user.ID.String()); err == nil {
			SuccessResponse(c, full)
			return
		}
	}

	// Admin lookup failed; the claims-derived user is still correct.
	SuccessResponse(c, user)
}
