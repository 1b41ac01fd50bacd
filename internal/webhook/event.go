package webhook

import (
	"encoding/json"
	"fmt"
)

// Event is the subset of a MailerSend activity webhook used for
// reconciliation.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the "data" object of an activity webhook.
type EventData struct {
	Type  string     `json:"type"`
	Email EventEmail `json:"email"`
	Morph *Morph     `json:"morph,omitempty"`
}

// EventEmail identifies the email the activity refers to.
type EventEmail struct {
	Message EventMessage `json:"message"`
	Status  string       `json:"status"`
}

// EventMessage carries the provider message id.
type EventMessage struct {
	ID string `json:"id"`
}

// Morph holds the provider's detail for failure activities.
type Morph struct {
	Reason string `json:"reason"`
}

// MessageID returns the provider message id the event refers to.
func (e Event) MessageID() string { return e.Data.Email.Message.ID }

// Kind returns the activity kind, preferring data.type.
func (e Event) Kind() string {
	if e.Data.Type != "" {
		return e.Data.Type
	}
	return e.Type
}

// Reason returns the failure reason, if the provider sent one.
func (e Event) Reason() string {
	if e.Data.Morph == nil {
		return ""
	}
	return e.Data.Morph.Reason
}

// ParseEvent decodes a webhook body. Bodies that are not JSON objects or
// that lack a type or message id are reported as ErrMalformedWebhook.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if err := ev.validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) validate() error {
	switch {
	case e.Type == "":
		return fmt.Errorf("%w: missing type", ErrMalformedWebhook)
	case e.MessageID() == "":
		return fmt.Errorf("%w: missing data.email.message.id", ErrMalformedWebhook)
	}
	return nil
}
