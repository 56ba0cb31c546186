package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// ProgressTopic is the routing key of the progress events of a book.
func ProgressTopic(bookID string) string {
	return "progress." + bookID
}

// ProgressPublisher forwards run events to the progress exchange. Delivery
// to clients is the job of whoever subscribes to the topic.
type ProgressPublisher struct {
	ch Publisher
}

func NewProgressPublisher(ch Publisher) *ProgressPublisher {
	return &ProgressPublisher{ch: Synchronized(ch)}
}

func (p *ProgressPublisher) Emit(_ context.Context, e store.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	return PublishTopic(p.ch, ProgressTopic(e.BookID), data)
}

var _ store.ProgressSink = (*ProgressPublisher)(nil)
