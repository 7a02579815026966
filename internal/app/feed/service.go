package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tudu-lists/project/internal/contracts"
	"github.com/tudu-lists/project/internal/platform/metrics"
)

var (
	ErrInvalidEventPayload = errors.New("invalid event payload")
	ErrListNotFound        = errors.New("todo list not found")
	ErrFeedNotAvailable    = errors.New("feed is not enabled for this list")
)

var eventsConsumed = metrics.NewCounterVec(metrics.Opts{
	Name: "tudu_feed_events_consumed_total",
	Help: "Activity events consumed into the feed projection, by event type.",
}, []string{"event_type"})

func init() {
	metrics.Default.MustRegister(eventsConsumed)
}

// StoredEvent is one row of the feed projection.
type StoredEvent struct {
	EventID    string
	ListID     string
	ListName   string
	ActorLogin string
	EventType  string
	Detail     string
	OccurredAt time.Time
	StreamSeq  uint64
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	InsertEvent(ctx context.Context, event StoredEvent) error
	RecentEvents(ctx context.Context, listID string, limit int) ([]StoredEvent, error)
	FeedAllowed(ctx context.Context, listID string) (bool, error)
}

// Service builds the per-list activity feed from the event stream and
// renders it as RSS.
type Service struct {
	Repo      Repository
	FeedLimit int
	BaseURL   string
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:      repo,
		FeedLimit: 50,
		BaseURL:   "http://localhost:8081",
	}
}

// HandleEvent ingests one published event. Inserts are keyed on the
// event id, so JetStream redeliveries are absorbed by the store.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, streamSeq uint64) error {
	var event contracts.ListEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEventPayload, err)
	}
	if event.EventID == "" || event.ListID == "" || event.EventType == "" {
		return fmt.Errorf("%w: missing event id, list id or event type", ErrInvalidEventPayload)
	}

	stored := StoredEvent{
		EventID:    event.EventID,
		ListID:     event.ListID,
		ListName:   event.ListName,
		ActorLogin: event.ActorLogin,
		EventType:  event.EventType,
		Detail:     event.Detail,
		OccurredAt: event.OccurredAt,
		StreamSeq:  streamSeq,
	}
	if err := s.Repo.InsertEvent(ctx, stored); err != nil {
		return err
	}
	eventsConsumed.WithLabelValues(event.EventType).Inc()
	return nil
}

// RenderRSS renders the list's recent activity as an RSS 2.0 document.
// Lists that never opted into a public feed yield ErrFeedNotAvailable.
func (s *Service) RenderRSS(ctx context.Context, listID string) ([]byte, error) {
	allowed, err := s.Repo.FeedAllowed(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrFeedNotAvailable
	}

	events, err := s.Repo.RecentEvents(ctx, listID, s.FeedLimit)
	if err != nil {
		return nil, err
	}
	return renderRSS(s.BaseURL, listID, events)
}

func eventHeadline(event StoredEvent) string {
	switch event.EventType {
	case contracts.EventListCreated:
		return fmt.Sprintf("%s created the list %q", event.ActorLogin, event.ListName)
	case contracts.EventListUpdated:
		return fmt.Sprintf("%s updated the list %q", event.ActorLogin, event.ListName)
	case contracts.EventListDeleted:
		return fmt.Sprintf("%s deleted the list %q", event.ActorLogin, event.ListName)
	case contracts.EventListRestored:
		return fmt.Sprintf("%s restored the list %q (%s)", event.ActorLogin, event.ListName, event.Detail)
	case contracts.EventMemberAdded:
		return fmt.Sprintf("%s added %s to %q", event.ActorLogin, event.Detail, event.ListName)
	case contracts.EventMemberRemoved:
		return fmt.Sprintf("%s removed %s from %q", event.ActorLogin, event.Detail, event.ListName)
	case contracts.EventTodoAdded:
		return fmt.Sprintf("%s added a todo to %q: %s", event.ActorLogin, event.ListName, event.Detail)
	default:
		return fmt.Sprintf("%s: %s on %q", event.ActorLogin, event.EventType, event.ListName)
	}
}
