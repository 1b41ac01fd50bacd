package request

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMissingContent means none of html, text or template_id resolved.
	ErrMissingContent = errors.New("missing content")
	// ErrNoRecipients means the request has no "to" recipients.
	ErrNoRecipients = errors.New("no recipients")
)

const (
	missingContentMessage = "Failed to send email. At least one of html, text and template_id should be set."
	noRecipientsMessage   = "Failed to deliver email. Expected at least 1 recipient."
)

// ValidationError reports a request that cannot be sent as stored.
type ValidationError struct {
	// Reason is ErrMissingContent or ErrNoRecipients.
	Reason error
	// Message is the text written back to the record.
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Reason }

// Defaults holds the identities and template applied to requests that omit them.
type Defaults struct {
	FromEmail    string
	FromName     string
	ReplyToEmail string
	ReplyToName  string
	TemplateID   string
}

// Validator normalizes raw requests against configured defaults.
type Validator struct {
	defaults Defaults
	validate *validator.Validate
}

// NewValidator creates a Validator applying the given defaults.
func NewValidator(defaults Defaults) *Validator {
	return &Validator{
		defaults: defaults,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Prepare fills defaults into a copy of raw and validates the result.
// raw itself is never modified.
func (v *Validator) Prepare(raw EmailRequest) (*EmailRequest, error) {
	req := raw.Clone()

	from := Address{}
	if req.From != nil {
		from = *req.From
	}
	if from.Email == "" {
		from.Email = v.defaults.FromEmail
	}
	if from.Name == "" {
		from.Name = v.defaults.FromName
	}
	req.From = &from

	replyTo := Address{}
	if req.ReplyTo != nil {
		replyTo = *req.ReplyTo
	}
	if replyTo.Email == "" {
		replyTo.Email = v.defaults.ReplyToEmail
	}
	if replyTo.Name == "" {
		replyTo.Name = v.defaults.ReplyToName
	}
	req.ReplyTo = &replyTo

	if req.HTML == "" && req.Text == "" && req.TemplateID == "" {
		req.TemplateID = v.defaults.TemplateID
	}

	if err := v.validate.Struct(&req); err != nil {
		return nil, toValidationError(err)
	}
	return &req, nil
}

// toValidationError maps validator field errors onto the two request
// failure kinds. Missing content wins when both apply.
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	var noRecipients bool
	for _, fe := range fieldErrs {
		switch fe.StructField() {
		case "TemplateID":
			return &ValidationError{Reason: ErrMissingContent, Message: missingContentMessage}
		case "To":
			noRecipients = true
		}
	}
	if noRecipients {
		return &ValidationError{Reason: ErrNoRecipients, Message: noRecipientsMessage}
	}
	return fmt.Errorf("validate request: %w", err)
}
