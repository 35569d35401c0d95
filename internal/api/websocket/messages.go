package websocket

import (
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
)

type MessageType string

const (
	// Telemetry, one message per poller tick
	MessageTypeTelemetry MessageType = "telemetry_update"

	// Device connection
	MessageTypeConnection MessageType = "connection_status"

	// Axis-safety guard
	MessageTypeGuard MessageType = "guard_status"

	// Firmware family switched
	MessageTypeFirmware MessageType = "firmware_changed"

	// Replies to client messages
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message is the envelope of everything the hub sends.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any `json:"data"`

	// consumer limits a telemetry message to clients subscribed to it
	consumer string
}

// ConnectionData is pushed whenever the monitor refreshed the status.
type ConnectionData struct {
	odrive.Status
	Error string `json:"error,omitempty"`
}

type FirmwareData struct {
	Family   string `json:"family"`
	Firmware string `json:"firmware"`
}

func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTelemetryMessage(u *telemetry.Update) Message {
	return Message{
		Type:      MessageTypeTelemetry,
		Timestamp: u.Timestamp,
		Data:      u,
		consumer:  u.Consumer,
	}
}

func NewConnectionMessage(st odrive.Status, err error) Message {
	data := ConnectionData{Status: st}
	if err != nil {
		data.Error = err.Error()
	}
	return NewMessage(MessageTypeConnection, data)
}

func NewGuardMessage(st guard.Status) Message {
	return NewMessage(MessageTypeGuard, st)
}

func NewFirmwareMessage(family, firmware string) Message {
	return NewMessage(MessageTypeFirmware, FirmwareData{Family: family, Firmware: firmware})
}
