package todolists

import (
	"context"
	"errors"
	"time"

	"github.com/tudu-lists/project/internal/app/snapshot"
	"github.com/tudu-lists/project/internal/contracts"
	"github.com/tudu-lists/project/internal/platform/metrics"
)

// Restore modes select how a parsed snapshot is reconciled against live
// state.
const (
	RestoreModeCreate  = "create"
	RestoreModeReplace = "replace"
	RestoreModeMerge   = "merge"
)

var restoresTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "tudu_restores_total",
	Help: "Completed snapshot restores, by mode.",
}, []string{"mode"})

func init() {
	metrics.Default.MustRegister(restoresTotal)
}

// RestoreTodoList parses snapshot bytes and reconciles them into the
// store under the named mode:
//
//   - create: fails with ErrConflict when the list id already exists;
//     otherwise builds the list from the snapshot with the actor as its
//     sole member. Snapshot membership is never restored — ownership
//     reverts to the importer.
//   - replace: removes every live todo (fail-fast, one call per item),
//     recreates the snapshot's todos and overwrites title and feed
//     flag. Membership is left untouched.
//   - merge: adds snapshot todos whose id is absent from the live list;
//     todos present on both sides keep their live fields, and live
//     todos missing from the snapshot are retained.
//
// All three modes set the list's last-update timestamp to now; for
// merge this happens even when no todo was added, as the observable
// signal that the merge ran.
func (s *Service) RestoreTodoList(ctx context.Context, actor, mode, listID string, data []byte) error {
	if listID == "" {
		return ErrListIDRequired
	}
	doc, err := snapshot.Parse(data)
	if err != nil {
		return err
	}

	switch mode {
	case RestoreModeCreate:
		err = s.restoreCreate(ctx, actor, listID, doc)
	case RestoreModeReplace:
		err = s.restoreReplace(ctx, actor, listID, doc)
	case RestoreModeMerge:
		err = s.restoreMerge(ctx, actor, listID, doc)
	default:
		return ErrUnknownRestoreMode
	}
	if err != nil {
		return err
	}
	restoresTotal.WithLabelValues(mode).Inc()
	return nil
}

func (s *Service) restoreCreate(ctx context.Context, actor, listID string, doc snapshot.Document) error {
	_, err := s.Store.FindList(ctx, listID)
	if err == nil {
		return ErrConflict
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	list := TodoList{
		ID:         listID,
		Name:       doc.Title,
		RSSAllowed: doc.RSS,
		LastUpdate: s.Now(),
	}
	if err := s.Store.SaveList(ctx, list); err != nil {
		return err
	}
	if err := s.Store.AddMember(ctx, listID, actor); err != nil {
		return err
	}
	for _, todo := range doc.Todos {
		if err := s.Store.SaveTodo(ctx, todoFromSnapshot(listID, todo)); err != nil {
			return err
		}
	}

	s.publishEvent(contracts.EventListRestored, list, actor, RestoreModeCreate)
	return nil
}

func (s *Service) restoreReplace(ctx context.Context, actor, listID string, doc snapshot.Document) error {
	list, err := s.FindTodoList(ctx, actor, listID)
	if err != nil {
		return err
	}

	// Same fail-fast discipline as DeleteTodoList: stop at the first
	// failing removal and leave the prefix in place.
	for _, todo := range list.Todos {
		if err := s.Store.RemoveTodo(ctx, listID, todo.ID); err != nil {
			return err
		}
	}

	list.Name = doc.Title
	list.RSSAllowed = doc.RSS
	list.LastUpdate = s.Now()
	if err := s.Store.SaveList(ctx, list); err != nil {
		return err
	}
	for _, todo := range doc.Todos {
		if err := s.Store.SaveTodo(ctx, todoFromSnapshot(listID, todo)); err != nil {
			return err
		}
	}

	s.publishEvent(contracts.EventListRestored, list, actor, RestoreModeReplace)
	return nil
}

func (s *Service) restoreMerge(ctx context.Context, actor, listID string, doc snapshot.Document) error {
	list, err := s.FindTodoList(ctx, actor, listID)
	if err != nil {
		return err
	}

	live := make(map[string]bool, len(list.Todos))
	for _, todo := range list.Todos {
		live[todo.ID] = true
	}
	for _, todo := range doc.Todos {
		if live[todo.ID] {
			// Skip-if-present: a merge never overwrites live fields.
			continue
		}
		if err := s.Store.SaveTodo(ctx, todoFromSnapshot(listID, todo)); err != nil {
			return err
		}
	}

	list.LastUpdate = s.Now()
	if err := s.Store.SaveList(ctx, list); err != nil {
		return err
	}

	s.publishEvent(contracts.EventListRestored, list, actor, RestoreModeMerge)
	return nil
}

func todoFromSnapshot(listID string, todo snapshot.Todo) Todo {
	return Todo{
		ID:           todo.ID,
		ListID:       listID,
		CreationDate: time.UnixMilli(todo.CreationDate).UTC(),
		Description:  todo.Description,
		Priority:     todo.Priority,
		Completed:    todo.Completed,
	}
}
