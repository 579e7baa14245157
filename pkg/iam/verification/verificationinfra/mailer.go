package verificationinfra

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
)

// SendEmailJob is the jobx type carrying a verification.Email.
const SendEmailJob = "verification.send_email"

var templates = map[string]notifx.EmailTemplate{
	verification.TemplateContactChannel: {
		Subject: "Verify your email at {{.project}}",
		HTML: `<p>Verify your email address for {{.project}}:</p>
<p><a href="{{.link}}">{{.link}}</a></p>`,
		Text: "Verify your email address for {{.project}}: {{.link}}",
	},
	verification.TemplateMagicLink: {
		Subject: "Sign in to {{.project}}",
		HTML: `<p>Your sign-in code for {{.project}} is <strong>{{.otp}}</strong>.</p>
<p>Or sign in directly: <a href="{{.link}}">{{.link}}</a></p>`,
		Text: "Your sign-in code for {{.project}} is {{.otp}}.\nOr sign in directly: {{.link}}",
	},
	verification.TemplatePasswordReset: {
		Subject: "Reset your {{.project}} password",
		HTML: `<p>Someone asked to reset your {{.project}} password.</p>
<p><a href="{{.link}}">Choose a new password</a>. Ignore this email if it wasn't you.</p>`,
		Text: "Someone asked to reset your {{.project}} password. Choose a new one at {{.link}}",
	},
}

// NotifxMailer renders and sends verification emails from the request.
type NotifxMailer struct {
	client *notifx.Client
}

func NewNotifxMailer(client *notifx.Client) (*NotifxMailer, error) {
	for name, t := range templates {
		if err := client.RegisterTemplate(name, t); err != nil {
			return nil, err
		}
	}
	return &NotifxMailer{client: client}, nil
}

func (m *NotifxMailer) Send(ctx context.Context, email verification.Email) error {
	err := m.client.SendTemplatedEmail(ctx, email.Template, email.Variables, notifx.EmailMessage{
		To:      []string{email.To},
		Subject: email.Subject,
	}, notifx.WithTags(map[string]string{
		"project_id": email.TenantID.String(),
		"template":   email.Template,
	}))
	if err != nil {
		return errx.Wrap(err, "send verification email", errx.TypeExternal).
			WithDetail("template", email.Template)
	}
	return nil
}

// QueuedMailer hands emails to jobx; RegisterEmailJob delivers them.
type QueuedMailer struct {
	jobs jobx.JobEnqueuer
}

func NewQueuedMailer(jobs jobx.JobEnqueuer) *QueuedMailer {
	return &QueuedMailer{jobs: jobs}
}

func (m *QueuedMailer) Send(ctx context.Context, email verification.Email) error {
	job, err := jobx.NewJob(SendEmailJob, email)
	if err != nil {
		return err
	}
	id, err := m.jobs.Enqueue(ctx, job)
	if err != nil {
		return err
	}
	logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":   id,
		"template": email.Template,
	}).Debug("verification email queued")
	return nil
}

// RegisterEmailJob makes the worker deliver queued emails through direct.
func RegisterEmailJob(jobs *jobx.Client, direct verification.Mailer) {
	jobs.Register(SendEmailJob, func(ctx context.Context, job *jobx.JobInfo) error {
		var email verification.Email
		if err := job.Decode(&email); err != nil {
			return err
		}
		return direct.Send(ctx, email)
	})
}
