package todolists

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tudu-lists/project/internal/app/identity"
	"github.com/tudu-lists/project/internal/sharding"
)

// directoryStub resolves a fixed set of logins.
type directoryStub struct {
	logins map[string]bool
}

func (d *directoryStub) FindUser(_ context.Context, login string) (identity.User, error) {
	if !d.logins[login] {
		return identity.User{}, identity.ErrNotFound
	}
	return identity.User{Login: login, Enabled: true}, nil
}

// spyStore wraps a MemoryStore and records every removal call in order.
// failTodoRemovalAt makes the Nth RemoveTodo call fail (1-based).
type spyStore struct {
	*MemoryStore
	removals          []string
	failTodoRemovalAt int
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: NewMemoryStore()}
}

func (s *spyStore) RemoveTodo(ctx context.Context, listID, todoID string) error {
	s.removals = append(s.removals, "todo:"+todoID)
	if s.failTodoRemovalAt != 0 && len(s.removals) == s.failTodoRemovalAt {
		return errors.New("storage unavailable")
	}
	return s.MemoryStore.RemoveTodo(ctx, listID, todoID)
}

func (s *spyStore) RemoveList(ctx context.Context, id string) error {
	s.removals = append(s.removals, "list:"+id)
	return s.MemoryStore.RemoveList(ctx, id)
}

func newTestService(store Store, logins ...string) *Service {
	known := map[string]bool{}
	for _, login := range logins {
		known[login] = true
	}
	svc := NewService(store, &directoryStub{logins: known})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	seq := 0
	svc.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return svc
}

func seedList(t *testing.T, svc *Service, actor, name string, descriptions ...string) TodoList {
	t.Helper()
	ctx := context.Background()
	list, err := svc.CreateTodoList(ctx, actor, TodoList{Name: name})
	if err != nil {
		t.Fatalf("CreateTodoList: %v", err)
	}
	for i, desc := range descriptions {
		todo := Todo{
			ID:           fmt.Sprintf("%04d", i+1),
			ListID:       list.ID,
			CreationDate: svc.Now(),
			Description:  desc,
			Priority:     i,
		}
		if err := svc.Store.SaveTodo(ctx, todo); err != nil {
			t.Fatalf("SaveTodo %q: %v", desc, err)
		}
	}
	list, err = svc.FindTodoList(ctx, actor, list.ID)
	if err != nil {
		t.Fatalf("FindTodoList after seeding: %v", err)
	}
	return list
}

func TestCreateTodoListMakesActorSoleMember(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	list, err := svc.CreateTodoList(context.Background(), "julien", TodoList{Name: "Chores"})
	if err != nil {
		t.Fatalf("CreateTodoList: %v", err)
	}
	if list.ID == "" {
		t.Fatal("expected a generated list id")
	}
	if len(list.Members) != 1 || list.Members[0] != "julien" {
		t.Fatalf("members = %v, want [julien]", list.Members)
	}

	stored, err := svc.FindTodoList(context.Background(), "julien", list.ID)
	if err != nil {
		t.Fatalf("FindTodoList: %v", err)
	}
	if len(stored.Members) != 1 || stored.Members[0] != "julien" {
		t.Fatalf("stored members = %v, want [julien]", stored.Members)
	}
}

func TestCreateTodoListValidation(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	if _, err := svc.CreateTodoList(context.Background(), "", TodoList{Name: "Chores"}); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("blank actor: err = %v, want ErrLoginRequired", err)
	}
	if _, err := svc.CreateTodoList(context.Background(), "julien", TodoList{Name: "   "}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("blank name: err = %v, want ErrNameRequired", err)
	}
}

func TestFindTodoListDeniesNonMember(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien", "intruder")
	list := seedList(t, svc, "julien", "Chores")

	if _, err := svc.FindTodoList(context.Background(), "intruder", list.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.FindTodoList(context.Background(), "julien", "no-such-list"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTodoListIssuesOneRemovalPerEntity(t *testing.T) {
	store := newSpyStore()
	svc := newTestService(store, "julien")
	list := seedList(t, svc, "julien", "groceries",
		"mint", "rum", "sugar", "lime juice", "club soda")

	if err := svc.DeleteTodoList(context.Background(), "julien", list.ID); err != nil {
		t.Fatalf("DeleteTodoList: %v", err)
	}

	if len(store.removals) != 6 {
		t.Fatalf("removal calls = %d (%v), want 6", len(store.removals), store.removals)
	}
	seen := map[string]int{}
	for _, call := range store.removals {
		seen[call]++
	}
	for call, n := range seen {
		if n != 1 {
			t.Errorf("removal %q issued %d times, want once", call, n)
		}
	}
	if last := store.removals[len(store.removals)-1]; last != "list:"+list.ID {
		t.Errorf("last removal = %q, want the list itself", last)
	}

	if _, err := svc.FindTodoList(context.Background(), "julien", list.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteTodoListStopsAtFirstFailingRemoval(t *testing.T) {
	store := newSpyStore()
	svc := newTestService(store, "julien")
	list := seedList(t, svc, "julien", "groceries",
		"mint", "rum", "sugar", "lime juice", "club soda")

	store.failTodoRemovalAt = 3
	err := svc.DeleteTodoList(context.Background(), "julien", list.ID)
	if err == nil {
		t.Fatal("expected the storage failure to propagate")
	}
	if err.Error() != "storage unavailable" {
		t.Fatalf("err = %v, want the collaborator error unwrapped", err)
	}
	if len(store.removals) != 3 {
		t.Fatalf("removal calls = %d (%v), want exactly 3", len(store.removals), store.removals)
	}

	// The completed prefix stays removed, the rest stays live.
	survivor, findErr := svc.FindTodoList(context.Background(), "julien", list.ID)
	if findErr != nil {
		t.Fatalf("FindTodoList after partial delete: %v", findErr)
	}
	if len(survivor.Todos) != 3 {
		t.Fatalf("surviving todos = %d, want 3", len(survivor.Todos))
	}
}

func TestDeleteTodoListDeniedBeforeAnyRemoval(t *testing.T) {
	store := newSpyStore()
	svc := newTestService(store, "julien", "intruder")
	list := seedList(t, svc, "julien", "groceries", "mint")

	if err := svc.DeleteTodoList(context.Background(), "intruder", list.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if len(store.removals) != 0 {
		t.Fatalf("removals = %v, want none before the permission check", store.removals)
	}
}

func TestAddTodoListUserIsIdempotent(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien", "alice")
	list := seedList(t, svc, "julien", "Chores")
	ctx := context.Background()

	if err := svc.AddTodoListUser(ctx, "julien", list.ID, "alice"); err != nil {
		t.Fatalf("first AddTodoListUser: %v", err)
	}
	if err := svc.AddTodoListUser(ctx, "julien", list.ID, "alice"); err != nil {
		t.Fatalf("repeat AddTodoListUser: %v", err)
	}

	stored, err := svc.FindTodoList(ctx, "julien", list.ID)
	if err != nil {
		t.Fatalf("FindTodoList: %v", err)
	}
	if len(stored.Members) != 2 {
		t.Fatalf("members = %v, want exactly [alice julien]", stored.Members)
	}

	// Once a member, alice sees the list from her side as well.
	if _, err := svc.FindTodoList(ctx, "alice", list.ID); err != nil {
		t.Fatalf("member access after add: %v", err)
	}
	aliceLists, err := svc.ListTodoLists(ctx, "alice")
	if err != nil {
		t.Fatalf("ListTodoLists: %v", err)
	}
	if len(aliceLists) != 1 || aliceLists[0].ID != list.ID {
		t.Fatalf("alice's lists = %v, want just %s", aliceLists, list.ID)
	}
}

func TestAddTodoListUserUnknownLogin(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	list := seedList(t, svc, "julien", "Chores")

	if err := svc.AddTodoListUser(context.Background(), "julien", list.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTodoListUserNonMemberIsNoOp(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien", "alice")
	list := seedList(t, svc, "julien", "Chores")
	ctx := context.Background()

	if err := svc.DeleteTodoListUser(ctx, "julien", list.ID, "alice"); err != nil {
		t.Fatalf("removing a non-member: %v", err)
	}

	if err := svc.AddTodoListUser(ctx, "julien", list.ID, "alice"); err != nil {
		t.Fatalf("AddTodoListUser: %v", err)
	}
	if err := svc.DeleteTodoListUser(ctx, "julien", list.ID, "alice"); err != nil {
		t.Fatalf("DeleteTodoListUser: %v", err)
	}
	if _, err := svc.FindTodoList(ctx, "alice", list.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err after removal = %v, want ErrPermissionDenied", err)
	}
	aliceLists, err := svc.ListTodoLists(ctx, "alice")
	if err != nil {
		t.Fatalf("ListTodoLists: %v", err)
	}
	if len(aliceLists) != 0 {
		t.Fatalf("alice's lists after removal = %v, want none", aliceLists)
	}
}

func TestUpdateTodoListBumpsLastUpdate(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	list := seedList(t, svc, "julien", "Chores")
	before := list.LastUpdate

	list.Name = "Weekend chores"
	if err := svc.UpdateTodoList(context.Background(), "julien", list); err != nil {
		t.Fatalf("UpdateTodoList: %v", err)
	}
	stored, err := svc.FindTodoList(context.Background(), "julien", list.ID)
	if err != nil {
		t.Fatalf("FindTodoList: %v", err)
	}
	if stored.Name != "Weekend chores" {
		t.Fatalf("name = %q, want the updated title", stored.Name)
	}
	if !stored.LastUpdate.After(before) {
		t.Fatalf("last update %v not after %v", stored.LastUpdate, before)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	svc.Publish = func(string, []byte) error { return errors.New("broker down") }

	if _, err := svc.CreateTodoList(context.Background(), "julien", TodoList{Name: "Chores"}); err != nil {
		t.Fatalf("CreateTodoList with failing publisher: %v", err)
	}
}

func TestPublishedEventCarriesActorAndList(t *testing.T) {
	svc := newTestService(newSpyStore(), "julien")
	var subjects []string
	svc.Publish = func(subject string, _ []byte) error {
		subjects = append(subjects, subject)
		return nil
	}

	list, err := svc.CreateTodoList(context.Background(), "julien", TodoList{Name: "Chores"})
	if err != nil {
		t.Fatalf("CreateTodoList: %v", err)
	}
	if len(subjects) != 1 {
		t.Fatalf("published %d events, want 1", len(subjects))
	}
	if want := sharding.EventSubject(list.ID); subjects[0] != want {
		t.Fatalf("subject = %q, want %q", subjects[0], want)
	}
}
