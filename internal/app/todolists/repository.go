package todolists

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of Postgres. Todo ids are scoped
// to their owning list, so the todos table is keyed on (list_id, id).
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const createTodoListsSQL = `
CREATE TABLE IF NOT EXISTS todo_lists (
  id text PRIMARY KEY,
  name text NOT NULL,
  rss_allowed boolean NOT NULL DEFAULT false,
  last_update timestamptz NOT NULL
)`

const createTodosSQL = `
CREATE TABLE IF NOT EXISTS todos (
  list_id text NOT NULL REFERENCES todo_lists(id) ON DELETE CASCADE,
  id text NOT NULL,
  creation_date timestamptz NOT NULL,
  description text NOT NULL DEFAULT '',
  priority integer NOT NULL DEFAULT 0,
  completed boolean NOT NULL DEFAULT false,
  PRIMARY KEY (list_id, id)
)`

const createTodoListUsersSQL = `
CREATE TABLE IF NOT EXISTS todo_list_users (
  list_id text NOT NULL REFERENCES todo_lists(id) ON DELETE CASCADE,
  login text NOT NULL REFERENCES users(login) ON DELETE CASCADE,
  added_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (list_id, login)
)`

func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTodoListsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createTodosSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createTodoListUsersSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresStore) SaveList(ctx context.Context, list TodoList) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO todo_lists (id, name, rss_allowed, last_update)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     rss_allowed = EXCLUDED.rss_allowed,
		     last_update = EXCLUDED.last_update`,
		list.ID, list.Name, list.RSSAllowed, list.LastUpdate,
	)
	return err
}

func (r *PostgresStore) FindList(ctx context.Context, id string) (TodoList, error) {
	var list TodoList
	err := r.Pool.QueryRow(ctx,
		`SELECT id, name, rss_allowed, last_update FROM todo_lists WHERE id = $1`,
		id,
	).Scan(&list.ID, &list.Name, &list.RSSAllowed, &list.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TodoList{}, ErrNotFound
		}
		return TodoList{}, err
	}

	rows, err := r.Pool.Query(ctx,
		`SELECT id, list_id, creation_date, description, priority, completed
		 FROM todos WHERE list_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return TodoList{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var todo Todo
		if err := rows.Scan(&todo.ID, &todo.ListID, &todo.CreationDate, &todo.Description, &todo.Priority, &todo.Completed); err != nil {
			return TodoList{}, err
		}
		list.Todos = append(list.Todos, todo)
	}
	if err := rows.Err(); err != nil {
		return TodoList{}, err
	}

	memberRows, err := r.Pool.Query(ctx,
		`SELECT login FROM todo_list_users WHERE list_id = $1 ORDER BY login`,
		id,
	)
	if err != nil {
		return TodoList{}, err
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var login string
		if err := memberRows.Scan(&login); err != nil {
			return TodoList{}, err
		}
		list.Members = append(list.Members, login)
	}
	if err := memberRows.Err(); err != nil {
		return TodoList{}, err
	}

	return list, nil
}

func (r *PostgresStore) RemoveList(ctx context.Context, id string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM todo_lists WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) SaveTodo(ctx context.Context, todo Todo) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO todos (list_id, id, creation_date, description, priority, completed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (list_id, id) DO UPDATE
		 SET creation_date = EXCLUDED.creation_date,
		     description = EXCLUDED.description,
		     priority = EXCLUDED.priority,
		     completed = EXCLUDED.completed`,
		todo.ListID, todo.ID, todo.CreationDate, todo.Description, todo.Priority, todo.Completed,
	)
	return err
}

func (r *PostgresStore) RemoveTodo(ctx context.Context, listID, todoID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM todos WHERE list_id = $1 AND id = $2`,
		listID, todoID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) AddMember(ctx context.Context, listID, login string) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO todo_list_users (list_id, login)
		 VALUES ($1, $2)
		 ON CONFLICT (list_id, login) DO NOTHING`,
		listID, login,
	)
	return err
}

func (r *PostgresStore) RemoveMember(ctx context.Context, listID, login string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM todo_list_users WHERE list_id = $1 AND login = $2`,
		listID, login,
	)
	return err
}

func (r *PostgresStore) ListsForUser(ctx context.Context, login string) ([]TodoList, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT l.id, l.name, l.rss_allowed, l.last_update
		 FROM todo_lists l
		 INNER JOIN todo_list_users m ON m.list_id = l.id
		 WHERE m.login = $1
		 ORDER BY l.id`,
		login,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := make([]TodoList, 0)
	for rows.Next() {
		var list TodoList
		if err := rows.Scan(&list.ID, &list.Name, &list.RSSAllowed, &list.LastUpdate); err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}
