package todolists

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tudu-lists/project/internal/app/identity"
	"github.com/tudu-lists/project/internal/app/snapshot"
	platformauth "github.com/tudu-lists/project/internal/platform/auth"
)

const maxSnapshotBytes = 1 << 20

type Handler struct {
	Lists    *Service
	Identity *identity.Service
}

func NewHandler(lists *Service, identitySvc *identity.Service) *Handler {
	return &Handler{
		Lists:    lists,
		Identity: identitySvc,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/auth/register", h.handleRegister)
	r.Post("/api/v1/auth/login", h.handleLogin)
	r.Post("/api/v1/auth/refresh", h.handleRefresh)
	r.Post("/api/v1/auth/logout", h.handleLogout)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)

		authR.Get("/api/v1/lists", h.handleListLists)
		authR.Post("/api/v1/lists", h.handleCreateList)
		authR.Get("/api/v1/lists/{listID}", h.handleGetList)
		authR.Put("/api/v1/lists/{listID}", h.handleUpdateList)
		authR.Delete("/api/v1/lists/{listID}", h.handleDeleteList)

		authR.Post("/api/v1/lists/{listID}/users", h.handleAddListUser)
		authR.Delete("/api/v1/lists/{listID}/users/{login}", h.handleDeleteListUser)

		authR.Get("/api/v1/lists/{listID}/backup", h.handleBackup)
		authR.Post("/api/v1/lists/{listID}/restore", h.handleRestore)

		authR.Get("/api/v1/users", h.handleFindUsers)
		authR.Post("/api/v1/users/{login}/enable", h.handleEnableUser)
		authR.Post("/api/v1/users/{login}/disable", h.handleDisableUser)
	})

	return r
}

type registerRequest struct {
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type listRequest struct {
	Name       string `json:"name"`
	RSSAllowed bool   `json:"rss_allowed"`
}

type addListUserRequest struct {
	Login string `json:"login"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Register(r.Context(), req.Login, req.FirstName, req.LastName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidLogin), errors.Is(err, identity.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				h.writeError(w, http.StatusConflict, "login already exists")
				return
			}
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, identity.ErrUserDisabled):
			h.writeError(w, http.StatusForbidden, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, identity.ErrUserDisabled):
			h.writeError(w, http.StatusForbidden, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListLists(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	lists, err := h.Lists.ListTodoLists(r.Context(), actor)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (h *Handler) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	actor := actorFromContext(r.Context())
	list, err := h.Lists.CreateTodoList(r.Context(), actor, TodoList{Name: req.Name, RSSAllowed: req.RSSAllowed})
	if err != nil {
		h.writeListError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, list)
}

func (h *Handler) handleGetList(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	list, err := h.Lists.FindTodoList(r.Context(), actor, chi.URLParam(r, "listID"))
	if err != nil {
		h.writeListError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	actor := actorFromContext(r.Context())
	list, err := h.Lists.FindTodoList(r.Context(), actor, chi.URLParam(r, "listID"))
	if err != nil {
		h.writeListError(w, err)
		return
	}
	list.Name = req.Name
	list.RSSAllowed = req.RSSAllowed
	if err := h.Lists.UpdateTodoList(r.Context(), actor, list); err != nil {
		h.writeListError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.Lists.DeleteTodoList(r.Context(), actor, chi.URLParam(r, "listID")); err != nil {
		h.writeListError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddListUser(w http.ResponseWriter, r *http.Request) {
	var req addListUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	actor := actorFromContext(r.Context())
	if err := h.Lists.AddTodoListUser(r.Context(), actor, chi.URLParam(r, "listID"), req.Login); err != nil {
		h.writeListError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteListUser(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.Lists.DeleteTodoListUser(r.Context(), actor, chi.URLParam(r, "listID"), chi.URLParam(r, "login")); err != nil {
		h.writeListError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	listID := chi.URLParam(r, "listID")
	list, err := h.Lists.FindTodoList(r.Context(), actor, listID)
	if err != nil {
		h.writeListError(w, err)
		return
	}
	data, err := h.Lists.BackupTodoList(list)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+listID+`.xml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable snapshot body")
		return
	}
	actor := actorFromContext(r.Context())
	if err := h.Lists.RestoreTodoList(r.Context(), actor, mode, chi.URLParam(r, "listID"), data); err != nil {
		h.writeListError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFindUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Identity.FindUsersByLogin(r.Context(), r.URL.Query().Get("login"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleEnableUser(w http.ResponseWriter, r *http.Request) {
	h.handleSetUserEnabled(w, r, h.Identity.EnableUser)
}

func (h *Handler) handleDisableUser(w http.ResponseWriter, r *http.Request) {
	h.handleSetUserEnabled(w, r, h.Identity.DisableUser)
}

func (h *Handler) handleSetUserEnabled(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	if err := op(r.Context(), chi.URLParam(r, "login")); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidLogin):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "user not found")
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeListError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, snapshot.ErrMalformed),
		errors.Is(err, ErrUnknownRestoreMode),
		errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrListIDRequired),
		errors.Is(err, ErrLoginRequired):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type actorContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Identity.AuthToken.Parse(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, claims.Login)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
