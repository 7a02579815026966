package todolists

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tudu-lists/project/internal/app/identity"
)

// userRepoStub is an in-memory identity.Repository for handler tests.
type userRepoStub struct {
	users  map[string]identity.User
	tokens map[string]identity.RefreshToken
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{
		users:  map[string]identity.User{},
		tokens: map[string]identity.RefreshToken{},
	}
}

func (r *userRepoStub) EnsureSchema(context.Context) error { return nil }

func (r *userRepoStub) CreateUser(_ context.Context, user identity.User) error {
	r.users[user.Login] = user
	return nil
}

func (r *userRepoStub) FindUserByLogin(_ context.Context, login string) (identity.User, error) {
	u, ok := r.users[login]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (r *userRepoStub) UpdateUser(_ context.Context, user identity.User) error {
	existing, ok := r.users[user.Login]
	if !ok {
		return identity.ErrNotFound
	}
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	r.users[user.Login] = existing
	return nil
}

func (r *userRepoStub) SetUserEnabled(_ context.Context, login string, enabled bool) error {
	u, ok := r.users[login]
	if !ok {
		return identity.ErrNotFound
	}
	u.Enabled = enabled
	r.users[login] = u
	return nil
}

func (r *userRepoStub) FindUsersByLogin(_ context.Context, pattern string) ([]identity.User, error) {
	var users []identity.User
	for login, u := range r.users {
		if strings.Contains(login, pattern) {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *userRepoStub) CreateRefreshToken(_ context.Context, token identity.RefreshToken) error {
	r.tokens[token.TokenHash] = token
	return nil
}

func (r *userRepoStub) FindRefreshTokenByHash(_ context.Context, hash string) (identity.RefreshToken, error) {
	token, ok := r.tokens[hash]
	if !ok || token.RevokedAt != nil {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return token, nil
}

func (r *userRepoStub) RevokeRefreshToken(_ context.Context, tokenID string) error {
	for hash, token := range r.tokens {
		if token.TokenID == tokenID {
			delete(r.tokens, hash)
		}
	}
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	identitySvc := identity.NewService(newUserRepoStub(), identity.NewTokenManager("handler-test-secret"))
	lists := NewService(NewMemoryStore(), identitySvc)
	handler := NewHandler(lists, identitySvc)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return handler, server
}

func registerAndLogin(t *testing.T, server *httptest.Server, login string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"login":      login,
		"first_name": "Test",
		"last_name":  "User",
		"password":   "long-enough-password",
	})
	resp, err := http.Post(server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	var auth struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if auth.AccessToken == "" {
		t.Fatal("register returned no access token")
	}
	return auth.AccessToken
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestHandlerRequiresBearerToken(t *testing.T) {
	_, server := newTestHandler(t)

	resp, err := http.Get(server.URL + "/api/v1/lists")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp2 := doJSON(t, http.MethodGet, server.URL+"/api/v1/lists", "not-a-token", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with garbage token = %d, want 401", resp2.StatusCode)
	}
}

func TestHandlerListLifecycle(t *testing.T) {
	_, server := newTestHandler(t)
	token := registerAndLogin(t, server, "julien")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", token, listRequest{Name: "Chores"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created TodoList
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created list: %v", err)
	}
	resp.Body.Close()
	if created.ID == "" || created.Name != "Chores" {
		t.Fatalf("unexpected created list %+v", created)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, server.URL+"/api/v1/lists/"+created.ID, token, listRequest{Name: "Weekend chores"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/v1/lists/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlerMapsListErrorsToStatuses(t *testing.T) {
	_, server := newTestHandler(t)
	owner := registerAndLogin(t, server, "julien")
	outsider := registerAndLogin(t, server, "intruder")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", owner, listRequest{Name: "Private"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created TodoList
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created list: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID, outsider, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member get status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/no-such-list", owner, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown list status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", owner, listRequest{Name: "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank name status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlerBackupAndRestore(t *testing.T) {
	_, server := newTestHandler(t)
	token := registerAndLogin(t, server, "julien")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", token, listRequest{Name: "Archive me"})
	var created TodoList
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created list: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID+"/backup", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("backup status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Fatalf("backup content type = %q, want XML", ct)
	}
	var snapshotBody bytes.Buffer
	if _, err := snapshotBody.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read backup body: %v", err)
	}
	resp.Body.Close()
	if !strings.Contains(snapshotBody.String(), "<title>Archive me</title>") {
		t.Fatalf("backup body missing title: %s", snapshotBody.String())
	}

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/lists/copy-of-list/restore?mode=create", bytes.NewReader(snapshotBody.Bytes()))
	if err != nil {
		t.Fatalf("build restore request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/xml")
	restoreResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("restore request: %v", err)
	}
	defer restoreResp.Body.Close()
	if restoreResp.StatusCode != http.StatusNoContent {
		t.Fatalf("restore status = %d, want 204", restoreResp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/copy-of-list", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get restored list status = %d, want 200", resp.StatusCode)
	}
	var restored TodoList
	if err := json.NewDecoder(resp.Body).Decode(&restored); err != nil {
		t.Fatalf("decode restored list: %v", err)
	}
	resp.Body.Close()
	if restored.Name != "Archive me" {
		t.Fatalf("restored name = %q, want the backed-up title", restored.Name)
	}
}

func TestHandlerRestoreRejectsBadInput(t *testing.T) {
	_, server := newTestHandler(t)
	token := registerAndLogin(t, server, "julien")

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/lists/x/restore?mode=upsert", strings.NewReader("<todolist><title>t</title><todos></todos></todolist>"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("restore request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown mode status = %d, want 400", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, server.URL+"/api/v1/lists/x/restore?mode=create", strings.NewReader("not xml at all"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("restore request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed snapshot status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlerMembershipRoutes(t *testing.T) {
	_, server := newTestHandler(t)
	owner := registerAndLogin(t, server, "julien")
	memberToken := registerAndLogin(t, server, "alice")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", owner, listRequest{Name: "Shared"})
	var created TodoList
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created list: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+created.ID+"/users", owner, addListUserRequest{Login: "alice"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add member status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID, memberToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member get status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+created.ID+"/users", owner, addListUserRequest{Login: "ghost"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown member status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/v1/lists/"+created.ID+"/users/alice", owner, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove member status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+created.ID, memberToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("removed member get status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}
