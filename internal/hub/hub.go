package hub

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// 推送频道
const (
	ChannelRealtime = "realtime"
	ChannelAlarms   = "alarms"
	ChannelSystem   = "system"
)

// Message 推送消息
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber 订阅者句柄。C 为接收通道；订阅者必须及时消费，
// 缓冲写满后该订阅者的消息被丢弃（尽力投递，不保证送达）。
type Subscriber struct {
	ID      int64
	Channel string
	C       chan Message

	dropped int64
}

// Dropped 累计丢弃条数
func (s *Subscriber) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Hub 进程内按频道扇出的推送枢纽
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*Subscriber // channel -> id -> subscriber
	nextID      int64
	bufferSize  int
	logger      *zap.Logger
}

// NewHub 创建推送枢纽
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		subscribers: make(map[string]map[int64]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe 订阅频道
func (h *Hub) Subscribe(channel string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{
		ID:      h.nextID,
		Channel: channel,
		C:       make(chan Message, h.bufferSize),
	}
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[int64]*Subscriber)
	}
	h.subscribers[channel][sub.ID] = sub
	return sub
}

// Unsubscribe 取消订阅。接收通道不关闭（发布方可能持有快照正在发送），
// 由 GC 回收；调用方停止读取即可。
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sub.Channel]
	if subs == nil {
		return
	}
	delete(subs, sub.ID)
}

// Publish 向频道发布消息。持锁仅做订阅者快照，发送在锁外进行；
// 慢订阅者的消息直接丢弃，不阻塞发布方和其他订阅者。
func (h *Hub) Publish(channel string, msg Message) {
	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subscribers[channel]))
	for _, sub := range h.subscribers[channel] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.C <- msg:
		default:
			n := atomic.AddInt64(&sub.dropped, 1)
			if n == 1 || n%100 == 0 {
				h.logger.Warn("slow subscriber, dropping message",
					zap.String("channel", channel),
					zap.Int64("subscriber_id", sub.ID),
					zap.Int64("dropped_total", n),
				)
			}
		}
	}
}

// CloseAll 清空全部订阅。用于进程退出，通道不关闭（见 Unsubscribe）。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = make(map[string]map[int64]*Subscriber)
}

// SubscriberCount 频道订阅者数量
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
