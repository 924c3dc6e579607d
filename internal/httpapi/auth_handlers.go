package httpapi

import (
	"errors"
	"net/http"
	"time"

	"authcore.org/internal/audit"
	"authcore.org/internal/auth"
	"authcore.org/internal/directory"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	Token string `json:"token,omitempty"`
}

type principalResponse struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Authorities []string `json:"authorities"`
}

type sessionResponse struct {
	Principal principalResponse `json:"principal"`
	Tokens    auth.TokenPair    `json:"tokens"`
}

type refreshResponse struct {
	Principal       principalResponse `json:"principal"`
	AccessToken     string            `json:"access_token"`
	AccessExpiresAt time.Time         `json:"access_expires_at"`
}

func toPrincipalResponse(p auth.Principal) principalResponse {
	roles := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		roles = append(roles, role.Name)
	}
	return principalResponse{
		UserID:      p.UserID,
		Email:       p.Email,
		Roles:       roles,
		Authorities: p.Authorities(),
	}
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, err := a.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	tokens, err := a.auth.IssueTokenPair(r.Context(), principal)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"user_id": principal.UserID,
		"email":   principal.Email,
	})
	writeJSON(w, http.StatusCreated, sessionResponse{
		Principal: toPrincipalResponse(principal),
		Tokens:    tokens,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	tokens, err := a.auth.IssueTokenPair(r.Context(), principal)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": principal.UserID,
		"email":   principal.Email,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Principal: toPrincipalResponse(principal),
		Tokens:    tokens,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, access, expiresAt, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, refreshResponse{
		Principal:       toPrincipalResponse(principal),
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
	})
}

// handleLogout revokes the caller's own token. The token comes from the
// Authorization header when present, from the body otherwise, so both
// browser clients and token-holding services can log out. Always 204:
// revoking nothing is still a completed logout.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw, _ := auth.TokenFromContext(r.Context())
	if raw == "" {
		var req logoutRequest
		if err := decodeJSON(w, r, &req); err == nil {
			raw = req.Token
		}
	}

	if err := a.auth.Logout(r.Context(), raw); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, toPrincipalResponse(principal))
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentity):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "authentication operation failed")
	}
}
