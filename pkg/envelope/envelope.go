// Package envelope is the message shape shared by the websocket channel and
// the redis pub/sub broker.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action"`
	Source  string          `json:"source,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Data    json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp int64 `json:"ts"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func New(action, source string) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Action:    action,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewEvent(action, source string, data interface{}) (Envelope, error) {
	e := New(action, source)
	raw, err := json.Marshal(data)
	if err != nil {
		return e, err
	}
	e.Data = raw
	return e, nil
}

// NewReply answers original with action, pointing back at its id.
func NewReply(original Envelope, action string, data interface{}) (Envelope, error) {
	e, err := NewEvent(action, original.Source, data)
	e.ReplyTo = original.ID
	return e, err
}

// NewError answers original with "<domain>.error" and a message payload the
// page script can show as is.
func NewError(original Envelope, action string, code int, message string) Envelope {
	e := New(action, original.Source)
	e.ReplyTo = original.ID
	e.Error = &ErrorPayload{Code: code, Message: message}
	e.Data, _ = json.Marshal(map[string]string{"message": message})
	return e
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// ParseData decodes the payload into T. An absent payload yields the zero T.
func ParseData[T any](e Envelope) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(e.Data, &v)
	return v, err
}
