package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe("j1", 4)
	defer cancelA()
	c, cancelC := b.Subscribe("j1", 4)
	defer cancelC()
	other, cancelO := b.Subscribe("j2", 4)
	defer cancelO()

	b.Publish("j1", NewEvent(EventProgress, "j1", nil))

	assert.Equal(t, EventProgress, (<-a).Type)
	assert.Equal(t, EventProgress, (<-c).Type)
	assert.Empty(t, other)
}

func TestBus_FullBufferKeepsNewest(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("j1", 1)
	defer cancel()

	b.Publish("j1", NewEvent(EventProgress, "j1", 5))
	b.Publish("j1", NewEvent(EventCompleted, "j1", nil))

	ev := <-ch
	assert.Equal(t, EventCompleted, ev.Type)
	assert.Empty(t, ch)
}

func TestBus_CancelClosesAndUnregisters(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("j1", 1)
	assert.Equal(t, 1, b.Subscribers("j1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("j1"))

	// no subscribers: must not panic or block
	b.Publish("j1", NewEvent(EventError, "j1", nil))
}
