package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeError    MessageType = "error"
)

// Remote methods understood by the sensor
const (
	MethodGetInfo            = "get_info"
	MethodGetReading         = "get_reading"
	MethodGetMethods         = "get_methods"
	MethodSetName            = "set_name"
	MethodSetReadingInterval = "set_reading_interval"
	MethodResetToFactory     = "reset_to_factory"
	MethodUpdateFirmware     = "update_firmware"
	MethodReboot             = "reboot"
)

// Error codes carried in ErrorMessage
const (
	ErrorCodeInvalidParams = "invalid_params"
	ErrorCodeUnknownMethod = "unknown_method"
	ErrorCodeBadRequest    = "bad_request"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// RequestMessage is the payload for MessageTypeRequest
type RequestMessage struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseMessage is the payload for MessageTypeResponse
type ResponseMessage struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NameParams is the params object for MethodSetName
type NameParams struct {
	Name string `json:"name"`
}

// IntervalParams is the params object for MethodSetReadingInterval
type IntervalParams struct {
	Interval int `json:"interval"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	err := json.Unmarshal(m.Payload, v)
	if err != nil {
		return err
	}
	return nil
}
