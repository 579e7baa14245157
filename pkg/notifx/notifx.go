package notifx

import (
	"context"
	"slices"
	"strings"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	From     string   `json:"from,omitempty"`
	To       []string `json:"to"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Client validates messages, renders templates and hands emails to a provider.
type Client struct {
	provider  EmailSender
	from      string
	defaults  []Option
	templates *TemplateRegistry
}

// NewClient builds a client. from is used when a message has none; defaults
// apply to every send before the per-call options.
func NewClient(provider EmailSender, from string, defaults ...Option) *Client {
	return &Client{
		provider:  provider,
		from:      from,
		defaults:  defaults,
		templates: NewTemplateRegistry(),
	}
}

// SendEmail validates msg and sends it through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if c.provider == nil {
		return notifxErrors.New(ErrNoProvider)
	}
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "invalid recipient")
		}
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	return c.provider.SendEmail(ctx, msg, append(slices.Clone(c.defaults), opts...)...)
}

// RegisterTemplate compiles and stores a named email template.
func (c *Client) RegisterTemplate(name string, t EmailTemplate) error {
	return c.templates.Register(name, t)
}

// SendTemplatedEmail renders the named template with data into msg and sends
// it. A subject already set on msg wins over the template's.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error {
	rendered, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}

	if msg.Subject == "" {
		msg.Subject = rendered.Subject
	}
	msg.HTMLBody = rendered.HTML
	msg.TextBody = rendered.Text
	return c.SendEmail(ctx, msg, opts...)
}
