package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DeliversToAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventVisitOpened, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.AggregateID)
		return errors.New("audit sink down")
	})
	d.Subscribe(EventVisitOpened, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.AggregateID)
		return nil
	})
	d.Subscribe(EventClaimDecided, func(_ context.Context, e Event) error {
		seen = append(seen, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventVisitOpened, AggregateID: "v1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit sink down")
	assert.Equal(t, []string{"first:v1", "second:v1"}, seen)
}

func TestDispatcher_NoHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventCodeIssued}))
}
