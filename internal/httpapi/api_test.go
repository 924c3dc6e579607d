package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"authcore.org/internal/auth"
	"authcore.org/internal/directory"
	"authcore.org/internal/revocation"
	"authcore.org/internal/token"
)

type testAPI struct {
	handler http.Handler
	dir     *directory.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	dir, err := directory.NewService(directory.NewMemoryStore())
	if err != nil {
		t.Fatalf("new directory service: %v", err)
	}
	resolver, err := auth.NewResolver(dir)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	codec, err := token.NewCodec("httpapi-test-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	svc, err := auth.NewService(
		auth.NewMemoryIdentityStore(),
		auth.BcryptHasher{Cost: bcrypt.MinCost},
		resolver,
		codec,
		revocation.NewMemoryStore(),
	)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	if err := dir.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}

	api := New(svc, dir, ReadyProbe{}, "test")
	return &testAPI{handler: api.Handler(), dir: dir}
}

func (a *testAPI) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (a *testAPI) signup(t *testing.T, email, password string) sessionResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/signup", "", credentialsRequest{Email: email, Password: password})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var session sessionResponse
	decodeBody(t, rec, &session)
	return session
}

// makeAdmin gives the user the directory management permission directly
// through the service layer, bootstrapping the first administrator.
func (a *testAPI) makeAdmin(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.dir.CreateRole(ctx, "ADMIN", "administrators"); err != nil {
		t.Fatalf("create admin role: %v", err)
	}
	if err := a.dir.GrantPermission(ctx, "ADMIN", directory.PermManageDirectory, "bootstrap"); err != nil {
		t.Fatalf("grant manage permission: %v", err)
	}
	if err := a.dir.AssignRole(ctx, userID, "ADMIN", "bootstrap", nil); err != nil {
		t.Fatalf("assign admin role: %v", err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	a := newTestAPI(t)

	if rec := a.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/v1/info", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("info status %d", rec.Code)
	}
}

func TestSignupLoginMeFlow(t *testing.T) {
	a := newTestAPI(t)

	session := a.signup(t, "alice@example.com", "s3cret")
	if session.Tokens.AccessToken == "" || session.Tokens.RefreshToken == "" {
		t.Fatal("signup did not return a token pair")
	}

	rec := a.do(t, http.MethodPost, "/v1/auth/signup", "", credentialsRequest{Email: "alice@example.com", Password: "other"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "alice@example.com", Password: "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d body %s", rec.Code, rec.Body.String())
	}
	var login sessionResponse
	decodeBody(t, rec, &login)

	rec = a.do(t, http.MethodGet, "/v1/auth/me", login.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d body %s", rec.Code, rec.Body.String())
	}
	var me principalResponse
	decodeBody(t, rec, &me)
	if me.Email != "alice@example.com" {
		t.Fatalf("me email %q", me.Email)
	}

	if rec := a.do(t, http.MethodGet, "/v1/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/v1/auth/me", "bogus", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me with bogus token status %d", rec.Code)
	}
}

func TestLoginFailureStatuses(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "bob@example.com", "right")

	wrongPW := a.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "bob@example.com", Password: "wrong"})
	noUser := a.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "ghost@example.com", Password: "right"})
	if wrongPW.Code != http.StatusUnauthorized || noUser.Code != http.StatusUnauthorized {
		t.Fatalf("statuses %d / %d, want 401 for both", wrongPW.Code, noUser.Code)
	}

	var a1, a2 map[string]any
	decodeBody(t, wrongPW, &a1)
	decodeBody(t, noUser, &a2)
	if a1["error"] != a2["error"] {
		t.Fatalf("error bodies differ: %v vs %v", a1["error"], a2["error"])
	}
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	a := newTestAPI(t)
	session := a.signup(t, "carol@example.com", "pw")

	rec := a.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: session.Tokens.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status %d body %s", rec.Code, rec.Body.String())
	}
	var refreshed refreshResponse
	decodeBody(t, rec, &refreshed)
	if refreshed.AccessToken == "" {
		t.Fatal("refresh returned no access token")
	}

	if rec := a.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: session.Tokens.AccessToken}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh with access token status %d", rec.Code)
	}

	if rec := a.do(t, http.MethodPost, "/v1/auth/logout", session.Tokens.AccessToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/v1/auth/me", session.Tokens.AccessToken, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status %d", rec.Code)
	}

	// Logging out the refresh token kills the refresh flow too.
	if rec := a.do(t, http.MethodPost, "/v1/auth/logout", session.Tokens.RefreshToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout refresh status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: session.Tokens.RefreshToken}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status %d", rec.Code)
	}
}

func TestLogoutWithoutTokenSucceeds(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.do(t, http.MethodPost, "/v1/auth/logout", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout without token status %d", rec.Code)
	}
}

func TestDirectoryAdminFlow(t *testing.T) {
	a := newTestAPI(t)
	admin := a.signup(t, "admin@example.com", "pw")
	a.makeAdmin(t, admin.Principal.UserID)
	user := a.signup(t, "user@example.com", "pw")

	// The admin token predates the role grant; live resolution makes it
	// effective immediately.
	adminToken := admin.Tokens.AccessToken

	rec := a.do(t, http.MethodPost, "/v1/directory/roles", adminToken, createRoleRequest{Name: "editor", Description: "content editors"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role status %d body %s", rec.Code, rec.Body.String())
	}
	var role directory.Role
	decodeBody(t, rec, &role)
	if role.Name != "EDITOR" {
		t.Fatalf("role name not normalized: %q", role.Name)
	}

	if rec := a.do(t, http.MethodPost, "/v1/directory/roles", adminToken, createRoleRequest{Name: "EDITOR"}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate role status %d", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/v1/directory/permissions", adminToken, createPermissionRequest{Code: "POST_EDIT", Category: "posts"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create permission status %d body %s", rec.Code, rec.Body.String())
	}

	if rec := a.do(t, http.MethodPost, "/v1/directory/roles/EDITOR/permissions", adminToken, grantPermissionRequest{Code: "POST_EDIT"}); rec.Code != http.StatusNoContent {
		t.Fatalf("grant permission status %d body %s", rec.Code, rec.Body.String())
	}

	userPath := "/v1/directory/users/" + user.Principal.UserID + "/roles"
	if rec := a.do(t, http.MethodPost, userPath, adminToken, assignRoleRequest{Role: "EDITOR"}); rec.Code != http.StatusNoContent {
		t.Fatalf("assign role status %d body %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/v1/auth/me", user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("user me status %d", rec.Code)
	}
	var me principalResponse
	decodeBody(t, rec, &me)
	found := false
	for _, authority := range me.Authorities {
		if authority == "POST_EDIT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("assigned permission missing from authorities: %v", me.Authorities)
	}

	rec = a.do(t, http.MethodGet, "/v1/directory/users/"+user.Principal.UserID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("user assignments status %d body %s", rec.Code, rec.Body.String())
	}

	if rec := a.do(t, http.MethodDelete, userPath, adminToken, revokeRoleRequest{Role: "EDITOR"}); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke role status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/v1/directory/roles/GHOST/permissions", adminToken, grantPermissionRequest{Code: "POST_EDIT"}); rec.Code != http.StatusNotFound {
		t.Fatalf("grant to unknown role status %d", rec.Code)
	}
}

func TestDirectoryRequiresManagePermission(t *testing.T) {
	a := newTestAPI(t)
	user := a.signup(t, "plain@example.com", "pw")

	rec := a.do(t, http.MethodPost, "/v1/directory/roles", user.Tokens.AccessToken, createRoleRequest{Name: "EDITOR"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin create role status %d", rec.Code)
	}
	rec = a.do(t, http.MethodPost, "/v1/directory/roles", "", createRoleRequest{Name: "EDITOR"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create role status %d", rec.Code)
	}
}

func TestTemporaryAssignmentOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	admin := a.signup(t, "root@example.com", "pw")
	a.makeAdmin(t, admin.Principal.UserID)
	user := a.signup(t, "temp@example.com", "pw")

	adminToken := admin.Tokens.AccessToken
	if rec := a.do(t, http.MethodPost, "/v1/directory/roles", adminToken, createRoleRequest{Name: "REVIEWER"}); rec.Code != http.StatusCreated {
		t.Fatalf("create role status %d", rec.Code)
	}

	userPath := "/v1/directory/users/" + user.Principal.UserID + "/roles"
	if rec := a.do(t, http.MethodPost, userPath, adminToken, assignRoleRequest{Role: "REVIEWER", TTL: "1h"}); rec.Code != http.StatusNoContent {
		t.Fatalf("temporary assign status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := a.do(t, http.MethodPost, userPath, adminToken, assignRoleRequest{Role: "REVIEWER", TTL: "bogus"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus ttl status %d", rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/v1/auth/me", user.Tokens.AccessToken, nil)
	var me principalResponse
	decodeBody(t, rec, &me)
	hasRole := false
	for _, r := range me.Roles {
		if r == "REVIEWER" {
			hasRole = true
		}
	}
	if !hasRole {
		t.Fatalf("temporary role not effective: %v", me.Roles)
	}
}
