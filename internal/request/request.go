// Package request models stored email requests and prepares them for sending.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Address is an email address with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EmailRequest is the document an external writer stores to ask for an
// email to be sent. Optional fields left at their zero value are treated as
// absent when the provider payload is built.
type EmailRequest struct {
	To              []Address       `json:"to" validate:"required,min=1"`
	CC              []Address       `json:"cc,omitempty"`
	BCC             []Address       `json:"bcc,omitempty"`
	From            *Address        `json:"from,omitempty"`
	ReplyTo         *Address        `json:"reply_to,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	HTML            string          `json:"html,omitempty"`
	Text            string          `json:"text,omitempty"`
	TemplateID      string          `json:"template_id,omitempty" validate:"required_without_all=HTML Text"`
	Variables       json.RawMessage `json:"variables,omitempty"`
	Personalization json.RawMessage `json:"personalization,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	SendAt          *time.Time      `json:"send_at,omitempty"`
}

// UnmarshalJSON decodes a request, accepting send_at either as an RFC 3339
// string or as Unix seconds (the provider's own shape).
func (r *EmailRequest) UnmarshalJSON(b []byte) error {
	type plain EmailRequest
	aux := struct {
		*plain
		SendAt json.RawMessage `json:"send_at,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	sendAt, err := parseSendAt(aux.SendAt)
	if err != nil {
		return err
	}
	r.SendAt = sendAt
	return nil
}

func parseSendAt(raw json.RawMessage) (*time.Time, error) {
	if !HasRaw(raw) {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("send_at: %w", err)
		}
		return &t, nil
	}

	var secs int64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return nil, fmt.Errorf("send_at: expected RFC 3339 string or unix seconds, got %s", raw)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

// Clone returns a deep copy of r.
func (r EmailRequest) Clone() EmailRequest {
	c := r
	c.To = slices.Clone(r.To)
	c.CC = slices.Clone(r.CC)
	c.BCC = slices.Clone(r.BCC)
	c.Tags = slices.Clone(r.Tags)
	c.Variables = bytes.Clone(r.Variables)
	c.Personalization = bytes.Clone(r.Personalization)
	if r.From != nil {
		from := *r.From
		c.From = &from
	}
	if r.ReplyTo != nil {
		replyTo := *r.ReplyTo
		c.ReplyTo = &replyTo
	}
	if r.SendAt != nil {
		sendAt := *r.SendAt
		c.SendAt = &sendAt
	}
	return c
}

// HasRaw reports whether a raw JSON value carries something other than null.
func HasRaw(m json.RawMessage) bool {
	trimmed := bytes.TrimSpace(m)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
