package event

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventType 文档变更事件类型
type EventType string

const (
	EventCreated  EventType = "CREATED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// ChangeEvent 文档变更事件
//
// CREATED/MODIFIED事件携带字节负载或负载定位符（二选一），
// DELETED事件两者皆空。同一DocumentID的事件必须按到达顺序应用。
type ChangeEvent struct {
	Type           EventType `json:"type"`
	DocumentID     string    `json:"document_id"`
	Name           string    `json:"name"`
	Payload        []byte    `json:"payload,omitempty"`
	PayloadLocator string    `json:"payload_locator,omitempty"`
}

// Validate 校验事件完整性
func (e ChangeEvent) Validate() error {
	if e.DocumentID == "" {
		return fmt.Errorf("change event missing document_id")
	}
	switch e.Type {
	case EventCreated, EventModified:
		if len(e.Payload) == 0 && e.PayloadLocator == "" {
			return fmt.Errorf("%s event for %s carries neither payload nor locator", e.Type, e.DocumentID)
		}
	case EventDeleted:
	default:
		return fmt.Errorf("unknown event type: %s", e.Type)
	}
	return nil
}

// ParseChangeEvent 解析JSON编码的变更事件
func ParseChangeEvent(data []byte) (*ChangeEvent, error) {
	var evt ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode change event: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Handler 变更事件处理函数
type Handler func(ctx context.Context, evt ChangeEvent) error

// Source 变更事件源
//
// 具体传输（Kafka、文件系统watch）在适配器内实现，核心只消费
// 按文档有序的事件流。
type Source interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// PayloadStore 负载定位符解析接口
type PayloadStore interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}
