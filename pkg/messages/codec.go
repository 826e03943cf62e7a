package messages

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrUnknownRole = errors.New("unknown message role")

// Marshal encodes a message as a JSON object carrying a "role" discriminator.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("message is nil")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "role", m.Role().String())
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	role := gjson.GetBytes(data, "role")
	if !role.Exists() {
		return nil, errors.New("missing role field")
	}

	var (
		m   Message
		err error
	)
	switch Role(role.String()) {
	case RoleSystem:
		var v System
		err = json.Unmarshal(data, &v)
		m = v
	case RoleUser:
		var v User
		err = json.Unmarshal(data, &v)
		m = v
	case RoleAssistant:
		var v Assistant
		err = json.Unmarshal(data, &v)
		m = v
	case RoleTool:
		var v ToolResult
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role.String())
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List is an ordered message sequence with a JSON array encoding.
type List []Message

func (l List) MarshalJSON() ([]byte, error) {
	b := []byte("[]")
	for i, m := range l {
		mb, err := Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if b, err = sjson.SetRawBytes(b, "-1", mb); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (l *List) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return errors.New("expected a JSON array of messages")
	}
	items := res.Array()
	out := make(List, 0, len(items))
	for i, item := range items {
		m, err := Unmarshal([]byte(item.Raw))
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	*l = out
	return nil
}

// Last returns the most recent message, if any.
func (l List) Last() (Message, bool) {
	if len(l) == 0 {
		return nil, false
	}
	return l[len(l)-1], true
}
