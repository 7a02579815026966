// Package snapshot implements the portable todo-list snapshot document.
//
// A snapshot is a self-contained XML rendering of one list: its title,
// feed flag, member logins and todos. It is produced by a backup and
// consumed by a restore; it has no lifecycle beyond that single call.
package snapshot

import (
	"encoding/xml"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed snapshot")

// Document is the transient, parsed form of a snapshot.
type Document struct {
	Title string
	RSS   bool
	Users []string
	Todos []Todo
}

// Todo is one todo entry inside a snapshot. CreationDate is kept as
// milliseconds since epoch, exactly as serialized.
type Todo struct {
	ID           string
	CreationDate int64
	Description  string
	Priority     int
	Completed    bool
}

type xmlDocument struct {
	XMLName xml.Name         `xml:"todolist"`
	Title   string           `xml:"title"`
	RSS     bool             `xml:"rss"`
	Users   *xmlUsersSection `xml:"users"`
	Todos   *xmlTodosSection `xml:"todos"`
}

type xmlUsersSection struct {
	Logins []string `xml:"user"`
}

type xmlTodosSection struct {
	Todos []xmlTodo `xml:"todo"`
}

type xmlTodo struct {
	ID           string `xml:"id,attr"`
	CreationDate int64  `xml:"creationDate"`
	Description  string `xml:"description"`
	Priority     int    `xml:"priority"`
	Completed    bool   `xml:"completed"`
}

// Marshal renders a document as an XML snapshot, including the XML
// declaration. The users and todos containers are always emitted, even
// when empty, so that the output parses back without loss.
func Marshal(doc Document) ([]byte, error) {
	out := xmlDocument{
		Title: doc.Title,
		RSS:   doc.RSS,
		Users: &xmlUsersSection{Logins: doc.Users},
		Todos: &xmlTodosSection{},
	}
	for _, todo := range doc.Todos {
		out.Todos.Todos = append(out.Todos.Todos, xmlTodo(todo))
	}

	body, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Parse decodes snapshot bytes into a Document. It fails with
// ErrMalformed when the document is not well-formed XML, when the title
// or the todos container is missing, or when a timestamp or priority is
// not an integer. Parse never touches live state.
func Parse(data []byte) (Document, error) {
	var in xmlDocument
	if err := xml.Unmarshal(data, &in); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Title == "" {
		return Document{}, fmt.Errorf("%w: missing title", ErrMalformed)
	}
	if in.Todos == nil {
		return Document{}, fmt.Errorf("%w: missing todos section", ErrMalformed)
	}

	doc := Document{
		Title: in.Title,
		RSS:   in.RSS,
	}
	if in.Users != nil {
		doc.Users = in.Users.Logins
	}
	for _, todo := range in.Todos.Todos {
		doc.Todos = append(doc.Todos, Todo(todo))
	}
	return doc, nil
}
