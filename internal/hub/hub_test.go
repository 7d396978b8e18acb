package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/hub"
)

func TestHub_PublishFanOut(t *testing.T) {
	h := hub.NewHub(4, zap.NewNop())

	a := h.Subscribe(hub.ChannelRealtime)
	b := h.Subscribe(hub.ChannelRealtime)
	other := h.Subscribe(hub.ChannelAlarms)
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)
	defer h.Unsubscribe(other)

	h.Publish(hub.ChannelRealtime, hub.Message{Type: "point_update", Data: 42})

	msg := <-a.C
	assert.Equal(t, "point_update", msg.Type)
	msg = <-b.C
	assert.Equal(t, "point_update", msg.Type)

	select {
	case <-other.C:
		t.Fatal("message leaked to another channel")
	default:
	}
}

// 慢订阅者只丢自己的消息，不影响别人也不阻塞发布方
func TestHub_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	h := hub.NewHub(2, zap.NewNop())

	slow := h.Subscribe(hub.ChannelRealtime)
	fast := h.Subscribe(hub.ChannelRealtime)
	defer h.Unsubscribe(slow)
	defer h.Unsubscribe(fast)

	// fast 边发边读，slow 从不消费
	for i := 0; i < 10; i++ {
		h.Publish(hub.ChannelRealtime, hub.Message{Type: "tick", Data: i})
		<-fast.C
	}

	// slow 缓冲 2 条，其余 8 条被丢弃
	assert.Equal(t, int64(8), slow.Dropped())
	assert.Len(t, slow.C, 2)
	assert.Equal(t, int64(0), fast.Dropped())
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := hub.NewHub(4, zap.NewNop())

	sub := h.Subscribe(hub.ChannelSystem)
	require.Equal(t, 1, h.SubscriberCount(hub.ChannelSystem))

	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.SubscriberCount(hub.ChannelSystem))

	h.Publish(hub.ChannelSystem, hub.Message{Type: "noise"})
	assert.Len(t, sub.C, 0)
}

func TestHub_SubscriberIDsAreUnique(t *testing.T) {
	h := hub.NewHub(1, zap.NewNop())

	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		sub := h.Subscribe(hub.ChannelRealtime)
		require.False(t, seen[sub.ID])
		seen[sub.ID] = true
	}
}
