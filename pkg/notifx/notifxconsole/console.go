package notifxconsole

import (
	"context"
	"strings"
	"sync"

	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
)

// ConsoleProvider logs emails via logx instead of delivering them, and keeps
// the messages it saw so that development tooling and tests can read them.
type ConsoleProvider struct {
	mu   sync.Mutex
	sent []notifx.EmailMessage
}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	so := notifx.ApplySendOptions(opts)
	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
		"tags":    so.Tags,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}

	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	return nil
}

// Sent returns a copy of every message seen so far.
func (p *ConsoleProvider) Sent() []notifx.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifx.EmailMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

// Last returns the most recent message, if any.
func (p *ConsoleProvider) Last() (notifx.EmailMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return notifx.EmailMessage{}, false
	}
	return p.sent[len(p.sent)-1], true
}
