// Package controlplane is the wire protocol and transport the sync
// orchestrator daemon exposes its operational surface over (spec §6:
// "start/stop/restart scheduled sync, full sync now, reconcile,
// provision agents, get progress, list recent workflows, list failed,
// cancel by id"). The envelope and request/response-by-ID correlation
// follow the teacher's coordinator/messages.go WSMessage shape, with
// the roles inverted: syncorchd hosts the websocket endpoint synccli
// dials into, instead of a service dialing out to a coordinator.
package controlplane

import (
	"time"

	"github.com/google/uuid"
)

// MessageType names one control-plane command or response.
type MessageType string

const (
	CmdFullSyncNow     MessageType = "full_sync_now"
	CmdReconcile       MessageType = "reconcile"
	CmdStartScheduled  MessageType = "start_scheduled"
	CmdStopScheduled   MessageType = "stop_scheduled"
	CmdProgress        MessageType = "progress"
	CmdListRecent      MessageType = "list_recent"
	CmdListFailed      MessageType = "list_failed"
	CmdCancel          MessageType = "cancel"
	CmdProvisionAgents MessageType = "provision_agents"

	RespOK    MessageType = "ok"
	RespError MessageType = "error"
)

// Message is the single envelope every control-plane request and
// response is framed as, matching WSMessage's request/response-by-ID
// correlation (spec §6's CLI surface has no other transport named, so
// we reuse the control-channel shape the DOMAIN STACK names for it).
type Message struct {
	ID        string                 `json:"id"`
	Type      MessageType            `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewMessage creates a Message of the given type with a fresh
// correlation ID and an empty payload.
func NewMessage(t MessageType) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Payload:   make(map[string]interface{}),
	}
}

// errorMessage builds a RespError reply correlated to req.
func errorMessage(req *Message, err error) *Message {
	m := NewMessage(RespError)
	m.ID = req.ID
	m.Payload["error"] = err.Error()
	return m
}

// okMessage builds a RespOK reply correlated to req, carrying payload.
func okMessage(req *Message, payload map[string]interface{}) *Message {
	m := NewMessage(RespOK)
	m.ID = req.ID
	if payload != nil {
		m.Payload = payload
	}
	return m
}
