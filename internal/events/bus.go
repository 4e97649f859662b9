// Package events 提供进程内事件总线，用于解耦工作流通知
package events

import (
	"sync"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventStepTransition 步骤切换
	EventStepTransition EventType = "step_transition"
	// EventOutlineGenerated 大纲生成完成
	EventOutlineGenerated EventType = "outline_generated"
	// EventArtifactAssembled 文稿装配完成
	EventArtifactAssembled EventType = "artifact_assembled"
	// EventProviderChanged 提供商配置变更
	EventProviderChanged EventType = "provider_changed"
)

// Event 系统事件
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber 事件回调
type Subscriber func(Event)

// Bus 非阻塞事件总线
// 事件经订阅者各自的缓冲通道异步投递，通道满时丢弃，不阻塞发布方。
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus 创建事件总线，bufferSize 为每个订阅者的通道容量
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe 订阅指定类型的事件，返回取消订阅函数
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				// 订阅者 panic 不得影响总线
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish 向所有订阅者发布事件，非阻塞
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// 通道已满，丢弃
		}
	}
}

// Close 关闭所有订阅通道并清空订阅
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
