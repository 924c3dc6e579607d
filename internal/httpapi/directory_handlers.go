package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"authcore.org/internal/audit"
	"authcore.org/internal/auth"
	"authcore.org/internal/directory"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createPermissionRequest struct {
	Code     string `json:"code"`
	Category string `json:"category"`
}

type grantPermissionRequest struct {
	Code string `json:"code"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
	// TTL makes the assignment temporary, e.g. "72h". Empty means the
	// assignment never expires.
	TTL string `json:"ttl,omitempty"`
}

type revokeRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, directory.PermManageDirectory) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.dir.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.create", map[string]any{
		"role": role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/directory/roles/%s", role.Name))
	writeJSON(w, http.StatusCreated, role)
}

// handleRoleScoped dispatches /v1/directory/roles/{name} and
// /v1/directory/roles/{name}/permissions.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/directory/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.ensurePermission(w, r, directory.PermManageDirectory) {
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleRoleItem(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleItem(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.dir.DeleteRole(r.Context(), name); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.delete", map[string]any{
		"role": name,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleName string) {
	var req grantPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	actor, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodPost:
		if err := a.dir.GrantPermission(r.Context(), roleName, req.Code, actor); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.permission.grant", map[string]any{
			"role": roleName,
			"code": req.Code,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.dir.RevokePermission(r.Context(), roleName, req.Code); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.permission.revoke", map[string]any{
			"role": roleName,
			"code": req.Code,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, directory.PermManageDirectory) {
		return
	}
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.dir.CreatePermission(r.Context(), req.Code, req.Category)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.permission.create", map[string]any{
		"code": perm.Code,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/directory/permissions/%s", perm.Code))
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/directory/permissions/"), "/")
	if code == "" || strings.Contains(code, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, directory.PermManageDirectory) {
		return
	}
	if err := a.dir.DeletePermission(r.Context(), code); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.permission.delete", map[string]any{
		"code": code,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleUserScoped dispatches /v1/directory/users/{id} and
// /v1/directory/users/{id}/roles.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/directory/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.ensurePermission(w, r, directory.PermManageDirectory) {
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUserItem(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserItem(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	assignments, err := a.dir.FindActiveRoles(r.Context(), userID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"assignments": assignments,
	})
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	actor, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var err error
		if req.TTL != "" {
			var d time.Duration
			d, err = time.ParseDuration(req.TTL)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid ttl")
				return
			}
			err = a.dir.AssignTemporaryRole(r.Context(), userID, req.Role, actor, d)
		} else {
			err = a.dir.AssignRole(r.Context(), userID, req.Role, actor, nil)
		}
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.assign", map[string]any{
			"user_id": userID,
			"role":    req.Role,
			"ttl":     req.TTL,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		var req revokeRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.dir.RevokeRole(r.Context(), userID, req.Role); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.revoke", map[string]any{
			"user_id": userID,
			"role":    req.Role,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "directory operation failed")
	}
}
