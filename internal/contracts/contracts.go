package contracts

import "time"

// Event types carried on the activity stream.
const (
	EventListCreated   = "list.created"
	EventListUpdated   = "list.updated"
	EventListDeleted   = "list.deleted"
	EventListRestored  = "list.restored"
	EventMemberAdded   = "member.added"
	EventMemberRemoved = "member.removed"
	EventTodoAdded     = "todo.added"
)

// ListEvent is the advisory activity event published by the list service
// and consumed by the feed streamer.
type ListEvent struct {
	EventID    string    `json:"event_id"`
	ListID     string    `json:"list_id"`
	ListName   string    `json:"list_name"`
	ActorLogin string    `json:"actor_login"`
	EventType  string    `json:"event_type"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
	ShardID    int       `json:"shard_id"`
}
