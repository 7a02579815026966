package todolists

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. The membership relation is held as
// two index maps (list→logins and login→lists) kept in step under one
// lock, so the symmetry invariant holds by construction and is
// checkable from either direction.
type MemoryStore struct {
	mu            sync.RWMutex
	lists         map[string]TodoList
	todos         map[string]map[string]Todo
	membersByList map[string]map[string]bool
	listsByMember map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:         map[string]TodoList{},
		todos:         map[string]map[string]Todo{},
		membersByList: map[string]map[string]bool{},
		listsByMember: map[string]map[string]bool{},
	}
}

func (m *MemoryStore) SaveList(_ context.Context, list TodoList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list.Todos = nil
	list.Members = nil
	m.lists[list.ID] = list
	if m.todos[list.ID] == nil {
		m.todos[list.ID] = map[string]Todo{}
	}
	return nil
}

func (m *MemoryStore) FindList(_ context.Context, id string) (TodoList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.lists[id]
	if !ok {
		return TodoList{}, ErrNotFound
	}
	for _, todo := range m.todos[id] {
		list.Todos = append(list.Todos, todo)
	}
	sort.Slice(list.Todos, func(i, j int) bool { return list.Todos[i].ID < list.Todos[j].ID })
	for login := range m.membersByList[id] {
		list.Members = append(list.Members, login)
	}
	sort.Strings(list.Members)
	return list, nil
}

// RemoveList drops the list, its membership relation rows and any todos
// still attached to it.
func (m *MemoryStore) RemoveList(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[id]; !ok {
		return ErrNotFound
	}
	delete(m.lists, id)
	delete(m.todos, id)
	for login := range m.membersByList[id] {
		delete(m.listsByMember[login], id)
	}
	delete(m.membersByList, id)
	return nil
}

func (m *MemoryStore) SaveTodo(_ context.Context, todo Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[todo.ListID]; !ok {
		return ErrNotFound
	}
	if m.todos[todo.ListID] == nil {
		m.todos[todo.ListID] = map[string]Todo{}
	}
	m.todos[todo.ListID][todo.ID] = todo
	return nil
}

func (m *MemoryStore) RemoveTodo(_ context.Context, listID, todoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byList, ok := m.todos[listID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := byList[todoID]; !ok {
		return ErrNotFound
	}
	delete(byList, todoID)
	return nil
}

func (m *MemoryStore) AddMember(_ context.Context, listID, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[listID]; !ok {
		return ErrNotFound
	}
	if m.membersByList[listID] == nil {
		m.membersByList[listID] = map[string]bool{}
	}
	if m.listsByMember[login] == nil {
		m.listsByMember[login] = map[string]bool{}
	}
	m.membersByList[listID][login] = true
	m.listsByMember[login][listID] = true
	return nil
}

func (m *MemoryStore) RemoveMember(_ context.Context, listID, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.membersByList[listID], login)
	delete(m.listsByMember[login], listID)
	return nil
}

func (m *MemoryStore) ListsForUser(_ context.Context, login string) ([]TodoList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]TodoList, 0, len(m.listsByMember[login]))
	for id := range m.listsByMember[login] {
		result = append(result, m.lists[id])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
