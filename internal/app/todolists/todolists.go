// Package todolists implements the shared todo-list lifecycle: list and
// item CRUD gated by membership, the user↔list membership relation, and
// snapshot backup/restore reconciliation.
package todolists

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConflict           = errors.New("todo list already exists")
	ErrUnknownRestoreMode = errors.New("unknown restore mode")
	ErrNameRequired       = errors.New("list name is required")
	ErrListIDRequired     = errors.New("list id is required")
	ErrLoginRequired      = errors.New("login is required")
)

// Todo is one item on a list. Its ID is unique within the owning list.
type Todo struct {
	ID           string    `json:"id"`
	ListID       string    `json:"list_id"`
	CreationDate time.Time `json:"creation_date"`
	Description  string    `json:"description"`
	Priority     int       `json:"priority"`
	Completed    bool      `json:"completed"`
}

// TodoList is a shared list. Members holds the logins of every user who
// may read or mutate the list; RSSAllowed gates the external activity
// feed.
type TodoList struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RSSAllowed bool      `json:"rss_allowed"`
	LastUpdate time.Time `json:"last_update"`
	Todos      []Todo    `json:"todos,omitempty"`
	Members    []string  `json:"members,omitempty"`
}

// Store is the persistence collaborator. Multi-entity operations in the
// service issue one call per entity and stop at the first failure; any
// atomicity across calls is the store's (or an outer transaction's)
// concern, never the service's.
//
// SaveList persists list attributes only — todos travel through SaveTodo
// and the membership relation through AddMember/RemoveMember. FindList
// returns the list with todos sorted by id and members sorted by login.
// RemoveList drops the membership relation rows together with the list.
type Store interface {
	SaveList(ctx context.Context, list TodoList) error
	FindList(ctx context.Context, id string) (TodoList, error)
	RemoveList(ctx context.Context, id string) error

	SaveTodo(ctx context.Context, todo Todo) error
	RemoveTodo(ctx context.Context, listID, todoID string) error

	AddMember(ctx context.Context, listID, login string) error
	RemoveMember(ctx context.Context, listID, login string) error
	ListsForUser(ctx context.Context, login string) ([]TodoList, error)
}

// Guard decides whether an actor may read or mutate a given list. It has
// no side effects.
type Guard interface {
	CanAccess(login string, list TodoList) bool
}

// MembershipGuard grants access iff the actor is a member of the list.
// By the symmetry invariant this is equivalent to the list being in the
// actor's membership set.
type MembershipGuard struct{}

func (MembershipGuard) CanAccess(login string, list TodoList) bool {
	return slices.Contains(list.Members, login)
}
