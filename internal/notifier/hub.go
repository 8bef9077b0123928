package notifier

import "sync"

// EventKind 标识状态变化的类别。
type EventKind string

const (
	// EventIdentityChanged 表示登录身份发生切换（登录、登出、恢复）。
	EventIdentityChanged EventKind = "identity_changed"
	// EventJobsChanged 表示本地记录集合被服务端确认的结果更新。
	EventJobsChanged EventKind = "jobs_changed"
	// EventAnalyticsChanged 表示统计快照被替换。
	EventAnalyticsChanged EventKind = "analytics_changed"
)

// Event 描述一次状态变化，UserID 在匿名态为空。
type Event struct {
	Kind   EventKind
	UserID string
}

// Listener 消费状态变化事件。
type Listener func(Event)

// Hub 负责把 store 的状态变化广播给视图层订阅者。
// 回调在发布方的 goroutine 内同步执行，订阅者自行保证轻量。
type Hub struct {
	mu        sync.Mutex
	seq       int
	listeners map[int]Listener
}

// NewHub 创建事件中心。
func NewHub() *Hub {
	return &Hub{listeners: make(map[int]Listener)}
}

// Subscribe 注册监听器，返回取消函数。
func (h *Hub) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	h.seq++
	id := h.seq
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Publish 把事件分发给当前全部订阅者。
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	snapshot := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		snapshot = append(snapshot, fn)
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn(e)
	}
}
