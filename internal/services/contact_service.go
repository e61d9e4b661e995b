package services

import (
	"context"
	"regexp"
	"strings"
)

// Contact form field names, matching the form inputs.
const (
	ContactFieldName    = "name"
	ContactFieldEmail   = "email"
	ContactFieldMessage = "message"
)

const (
	contactRequiredMessage = "This field is required"
	contactEmailMessage    = "Please enter a valid email address"
)

var contactEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ContactServiceDeps wires optional collaborators for contact submissions.
type ContactServiceDeps struct {
	Logger func(context.Context, string, map[string]any)
}

type contactService struct {
	logger func(context.Context, string, map[string]any)
}

// NewContactService constructs a ContactService.
func NewContactService(deps ContactServiceDeps) ContactService {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contactService{logger: logger}
}

// Submit validates the submission. Nothing is delivered anywhere; a valid submission is
// only logged.
func (s *contactService) Submit(ctx context.Context, cmd ContactCommand) (ContactResult, error) {
	fieldErrors := make(map[string]string)

	required := map[string]string{
		ContactFieldName:    cmd.Name,
		ContactFieldEmail:   cmd.Email,
		ContactFieldMessage: cmd.Message,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			fieldErrors[field] = contactRequiredMessage
		}
	}

	email := strings.TrimSpace(cmd.Email)
	if _, missing := fieldErrors[ContactFieldEmail]; !missing && !contactEmailPattern.MatchString(email) {
		fieldErrors[ContactFieldEmail] = contactEmailMessage
	}

	if len(fieldErrors) > 0 {
		s.logger(ctx, "contact.invalid", map[string]any{"fields": len(fieldErrors)})
		return ContactResult{Valid: false, FieldErrors: fieldErrors}, nil
	}

	s.logger(ctx, "contact.submitted", map[string]any{
		"emailDomain": emailDomain(email),
		"subject":     strings.TrimSpace(cmd.Subject),
		"length":      len(cmd.Message),
	})
	return ContactResult{Valid: true, FieldErrors: map[string]string{}}, nil
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
