package todolists

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/tudu-lists/project/internal/app/identity"
	"github.com/tudu-lists/project/internal/app/snapshot"
	"github.com/tudu-lists/project/internal/contracts"
	"github.com/tudu-lists/project/internal/platform/metrics"
	"github.com/tudu-lists/project/internal/sharding"
)

var publishFailures = metrics.NewCounterVec(metrics.Opts{
	Name: "tudu_event_publish_failures_total",
	Help: "Activity events that could not be published, by event type.",
}, []string{"event_type"})

func init() {
	metrics.Default.MustRegister(publishFailures)
}

// UserDirectory is the slice of the identity service the list service
// consumes: resolving logins when the membership relation changes.
type UserDirectory interface {
	FindUser(ctx context.Context, login string) (identity.User, error)
}

type PublishFunc func(subject string, payload []byte) error

// Service owns the list lifecycle. The acting user is always passed in
// explicitly; there is no ambient current-user lookup.
type Service struct {
	Store   Store
	Users   UserDirectory
	Guard   Guard
	Publish PublishFunc
	Now     func() time.Time
	NewID   func() string
}

func NewService(store Store, users UserDirectory) *Service {
	return &Service{
		Store: store,
		Users: users,
		Guard: MembershipGuard{},
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: nuid.Next,
	}
}

// CreateTodoList persists a new list and makes the actor its first
// member. Creation is always allowed; no permission check applies.
func (s *Service) CreateTodoList(ctx context.Context, actor string, list TodoList) (TodoList, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return TodoList{}, ErrLoginRequired
	}
	list.Name = strings.TrimSpace(list.Name)
	if list.Name == "" {
		return TodoList{}, ErrNameRequired
	}
	if list.ID == "" {
		list.ID = s.NewID()
	}
	list.LastUpdate = s.Now()

	if err := s.Store.SaveList(ctx, list); err != nil {
		return TodoList{}, err
	}
	if err := s.Store.AddMember(ctx, list.ID, actor); err != nil {
		return TodoList{}, err
	}
	list.Members = []string{actor}

	s.publishEvent(contracts.EventListCreated, list, actor, "")
	return list, nil
}

// FindTodoList loads a list by id. It fails with ErrPermissionDenied
// when the actor is not a member, and ErrNotFound for an unknown id.
func (s *Service) FindTodoList(ctx context.Context, actor, listID string) (TodoList, error) {
	list, err := s.Store.FindList(ctx, listID)
	if err != nil {
		return TodoList{}, err
	}
	if !s.Guard.CanAccess(actor, list) {
		return TodoList{}, ErrPermissionDenied
	}
	return list, nil
}

// UpdateTodoList persists mutated attributes of an already-loaded,
// permission-checked list. It has no membership side effects.
func (s *Service) UpdateTodoList(ctx context.Context, actor string, list TodoList) error {
	if list.ID == "" {
		return ErrListIDRequired
	}
	list.Name = strings.TrimSpace(list.Name)
	if list.Name == "" {
		return ErrNameRequired
	}
	list.LastUpdate = s.Now()
	if err := s.Store.SaveList(ctx, list); err != nil {
		return err
	}
	s.publishEvent(contracts.EventListUpdated, list, actor, "")
	return nil
}

// DeleteTodoList removes every todo on the list and then the list
// itself, one store call per entity. A failing removal propagates
// immediately and no further removals are attempted; whatever the
// completed prefix produced stays persisted.
func (s *Service) DeleteTodoList(ctx context.Context, actor, listID string) error {
	list, err := s.FindTodoList(ctx, actor, listID)
	if err != nil {
		return err
	}
	for _, todo := range list.Todos {
		if err := s.Store.RemoveTodo(ctx, listID, todo.ID); err != nil {
			return err
		}
	}
	if err := s.Store.RemoveList(ctx, listID); err != nil {
		return err
	}
	s.publishEvent(contracts.EventListDeleted, list, actor, "")
	return nil
}

// AddTodoListUser adds a user to the list's membership. Adding an
// existing member is a no-op.
func (s *Service) AddTodoListUser(ctx context.Context, actor, listID, login string) error {
	list, err := s.FindTodoList(ctx, actor, listID)
	if err != nil {
		return err
	}
	user, err := s.findDirectoryUser(ctx, login)
	if err != nil {
		return err
	}
	if slices.Contains(list.Members, user.Login) {
		return nil
	}
	if err := s.Store.AddMember(ctx, listID, user.Login); err != nil {
		return err
	}
	s.publishEvent(contracts.EventMemberAdded, list, actor, user.Login)
	return nil
}

// DeleteTodoListUser removes a user from the list's membership. Removing
// a non-member is a no-op.
func (s *Service) DeleteTodoListUser(ctx context.Context, actor, listID, login string) error {
	list, err := s.FindTodoList(ctx, actor, listID)
	if err != nil {
		return err
	}
	user, err := s.findDirectoryUser(ctx, login)
	if err != nil {
		return err
	}
	if !slices.Contains(list.Members, user.Login) {
		return nil
	}
	if err := s.Store.RemoveMember(ctx, listID, user.Login); err != nil {
		return err
	}
	s.publishEvent(contracts.EventMemberRemoved, list, actor, user.Login)
	return nil
}

// ListTodoLists returns the lists the actor is a member of.
func (s *Service) ListTodoLists(ctx context.Context, actor string) ([]TodoList, error) {
	return s.Store.ListsForUser(ctx, actor)
}

// BackupTodoList renders a permission-checked list as a snapshot
// document. It is a pure transformation with no persistence side
// effects.
func (s *Service) BackupTodoList(list TodoList) ([]byte, error) {
	doc := snapshot.Document{
		Title: list.Name,
		RSS:   list.RSSAllowed,
		Users: list.Members,
	}
	for _, todo := range list.Todos {
		doc.Todos = append(doc.Todos, snapshot.Todo{
			ID:           todo.ID,
			CreationDate: todo.CreationDate.UnixMilli(),
			Description:  todo.Description,
			Priority:     todo.Priority,
			Completed:    todo.Completed,
		})
	}
	return snapshot.Marshal(doc)
}

func (s *Service) findDirectoryUser(ctx context.Context, login string) (identity.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return identity.User{}, ErrLoginRequired
	}
	user, err := s.Users.FindUser(ctx, login)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrNotFound
		}
		return identity.User{}, err
	}
	return user, nil
}

// publishEvent emits an advisory activity event for the feed. The feed
// is a read-side projection: a publish failure must not fail the
// mutation, so it only increments a counter.
func (s *Service) publishEvent(eventType string, list TodoList, actor, detail string) {
	if s.Publish == nil {
		return
	}
	event := contracts.ListEvent{
		EventID:    s.NewID(),
		ListID:     list.ID,
		ListName:   list.Name,
		ActorLogin: actor,
		EventType:  eventType,
		Detail:     detail,
		OccurredAt: s.Now(),
		ShardID:    sharding.GetShardID(list.ID),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		publishFailures.WithLabelValues(eventType).Inc()
		return
	}
	if err := s.Publish(sharding.EventSubject(list.ID), payload); err != nil {
		publishFailures.WithLabelValues(eventType).Inc()
	}
}
