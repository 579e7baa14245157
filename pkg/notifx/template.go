package notifx

import (
	"bytes"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

// EmailTemplate is the source of one kind of email. Subject and Text are
// text/templates, HTML is an html/template; all three see the same data.
// Text may be empty.
type EmailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

// RenderedEmail is an EmailTemplate after execution.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

type compiledTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// TemplateRegistry holds compiled templates by name. Safe for concurrent use.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]compiledTemplate
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]compiledTemplate)}
}

// Register compiles t and stores it under name, replacing any previous one.
func (r *TemplateRegistry) Register(name string, t EmailTemplate) error {
	var (
		c   compiledTemplate
		err error
	)
	fail := func(part string, err error) error {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).
			WithDetail("template", name).
			WithDetail("part", part)
	}

	if c.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(t.Subject); err != nil {
		return fail("subject", err)
	}
	if c.html, err = htmltemplate.New(name + ".html").Option("missingkey=error").Parse(t.HTML); err != nil {
		return fail("html", err)
	}
	if t.Text != "" {
		if c.text, err = texttemplate.New(name + ".text").Option("missingkey=error").Parse(t.Text); err != nil {
			return fail("text", err)
		}
	}

	r.mu.Lock()
	r.templates[name] = c
	r.mu.Unlock()
	return nil
}

// Render executes every part of the named template with data.
func (r *TemplateRegistry) Render(name string, data any) (RenderedEmail, error) {
	r.mu.RLock()
	c, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return RenderedEmail{}, notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var out RenderedEmail
	var buf bytes.Buffer
	exec := func(part string, execute func() error) (string, error) {
		buf.Reset()
		if err := execute(); err != nil {
			return "", notifxErrors.NewWithCause(ErrTemplateRender, err).
				WithDetail("template", name).
				WithDetail("part", part)
		}
		return buf.String(), nil
	}

	var err error
	if out.Subject, err = exec("subject", func() error { return c.subject.Execute(&buf, data) }); err != nil {
		return RenderedEmail{}, err
	}
	if out.HTML, err = exec("html", func() error { return c.html.Execute(&buf, data) }); err != nil {
		return RenderedEmail{}, err
	}
	if c.text != nil {
		if out.Text, err = exec("text", func() error { return c.text.Execute(&buf, data) }); err != nil {
			return RenderedEmail{}, err
		}
	}
	return out, nil
}
