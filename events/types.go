package events

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Event is anything published while a session runs.
type Event interface {
	Kind() string
	Session() uuid.UUID
	event()
}

type ThreadCreated struct {
	SessionID uuid.UUID       `json:"session_id"`
	NodeID    string          `json:"node_id"`
	ThreadID  string          `json:"thread_id"`
	Source    string          `json:"source"`
	Injected  int             `json:"injected"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

type NodeStarted struct {
	SessionID uuid.UUID       `json:"session_id"`
	NodeID    string          `json:"node_id"`
	NodeName  string          `json:"node_name"`
	ThreadID  string          `json:"thread_id"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

type ToolInvoked struct {
	SessionID uuid.UUID       `json:"session_id"`
	NodeID    string          `json:"node_id"`
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Arguments string          `json:"arguments"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

type NodeFinished struct {
	SessionID uuid.UUID       `json:"session_id"`
	NodeID    string          `json:"node_id"`
	Status    string          `json:"status"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

type OutputMerged struct {
	SessionID   uuid.UUID       `json:"session_id"`
	NodeID      string          `json:"node_id"`
	ThreadID    string          `json:"thread_id"`
	Destination string          `json:"destination"`
	Timestamp   strfmt.DateTime `json:"timestamp"`
}

type RunFinished struct {
	SessionID uuid.UUID       `json:"session_id"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

const (
	kindThreadCreated = "thread_created"
	kindNodeStarted   = "node_started"
	kindToolInvoked   = "tool_invoked"
	kindNodeFinished  = "node_finished"
	kindOutputMerged  = "output_merged"
	kindRunFinished   = "run_finished"
)

func (ThreadCreated) event() {}
func (NodeStarted) event()   {}
func (ToolInvoked) event()   {}
func (NodeFinished) event()  {}
func (OutputMerged) event()  {}
func (RunFinished) event()   {}

func (ThreadCreated) Kind() string { return kindThreadCreated }
func (NodeStarted) Kind() string   { return kindNodeStarted }
func (ToolInvoked) Kind() string   { return kindToolInvoked }
func (NodeFinished) Kind() string  { return kindNodeFinished }
func (OutputMerged) Kind() string  { return kindOutputMerged }
func (RunFinished) Kind() string   { return kindRunFinished }

func (e ThreadCreated) Session() uuid.UUID { return e.SessionID }
func (e NodeStarted) Session() uuid.UUID   { return e.SessionID }
func (e ToolInvoked) Session() uuid.UUID   { return e.SessionID }
func (e NodeFinished) Session() uuid.UUID  { return e.SessionID }
func (e OutputMerged) Session() uuid.UUID  { return e.SessionID }
func (e RunFinished) Session() uuid.UUID   { return e.SessionID }

// ToJSON encodes an event with its type marker.
func ToJSON(e Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("event is nil")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", e.Kind())
}

// FromJSON decodes an event produced by ToJSON.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid event json: %s", data)
	}
	kind := gjson.GetBytes(data, "type")
	if !kind.Exists() {
		return nil, errors.New("event has no type")
	}

	switch kind.String() {
	case kindThreadCreated:
		return decode[ThreadCreated](data)
	case kindNodeStarted:
		return decode[NodeStarted](data)
	case kindToolInvoked:
		return decode[ToolInvoked](data)
	case kindNodeFinished:
		return decode[NodeFinished](data)
	case kindOutputMerged:
		return decode[OutputMerged](data)
	case kindRunFinished:
		return decode[RunFinished](data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind.String())
	}
}

func decode[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}
