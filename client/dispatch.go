package client

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event types pushed by the service.
const (
	MsgTypeAuth     = "auth"
	MsgTypePending  = "pending"
	MsgTypeProgress = "progress"
	MsgTypeFinished = "finished"
	MsgTypeError    = "error"
)

// Message is one inbound frame. Raw holds the whole JSON object, type included.
type Message struct {
	Type string
	Raw  json.RawMessage
}

// Fields returns the frame as a generic JSON object.
func (m Message) Fields() (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(m.Raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", m.Type, err)
	}
	return fields, nil
}

// Decode unmarshals the frame into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Raw, v); err != nil {
		return fmt.Errorf("decode %s message: %w", m.Type, err)
	}
	return nil
}

// OutboundMessage is a frame sent by the client. Type is required; Fields are
// written beside it.
type OutboundMessage struct {
	Type   string
	Fields map[string]any
}

// MarshalJSON flattens Fields next to type.
func (m OutboundMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["type"] = m.Type
	return json.Marshal(out)
}

// MessageHandler handles one inbound frame. It runs on the session's read
// goroutine, so a slow handler delays the frames behind it.
type MessageHandler func(msg Message)

// Dispatcher maps message types to handlers. There is at most one handler
// per type; registering again replaces it. It is safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]MessageHandler)}
}

// Register sets the handler for msgType. A nil handler removes it.
func (d *Dispatcher) Register(msgType string, h MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, msgType)
		return
	}
	d.handlers[msgType] = h
}

// Unregister removes the handler for msgType, if any.
func (d *Dispatcher) Unregister(msgType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, msgType)
}

// Lookup returns the handler for msgType.
func (d *Dispatcher) Lookup(msgType string) (MessageHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[msgType]
	return h, ok
}

// Dispatch calls the handler registered for msg.Type and reports whether one
// was found. The lock is not held while the handler runs, so handlers may
// register or unregister handlers.
func (d *Dispatcher) Dispatch(msg Message) bool {
	h, ok := d.Lookup(msg.Type)
	if !ok {
		return false
	}
	h(msg)
	return true
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// --- Typed events ---

// PendingEvent reports a queued task and its position.
type PendingEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Data   struct {
		Current int `json:"current"`
	} `json:"data"`
}

// ProgressEvent reports execution progress as a percentage.
type ProgressEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Data   struct {
		Process float64 `json:"process"`
	} `json:"data"`
}

// FinishedEvent reports the end of a task.
type FinishedEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Data   struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	} `json:"data"`
}

// ErrorEvent reports a task execution error.
type ErrorEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Data   struct {
		Message string `json:"message"`
	} `json:"data"`
}

// typed registers h for msgType, decoding each frame into T first.
// Frames that do not decode go to onDecodeError when it is set.
func typed[T any](d *Dispatcher, msgType string, h func(T), onDecodeError func(Message, error)) {
	d.Register(msgType, func(msg Message) {
		var ev T
		if err := msg.Decode(&ev); err != nil {
			if onDecodeError != nil {
				onDecodeError(msg, err)
			}
			return
		}
		h(ev)
	})
}
