package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
)

const (
	defaultTTL = 7 * 24 * time.Hour
	// 32 random bytes, 52 base32 characters.
	codeBytes = 32
)

// Consumption outcomes, used as the metrics label.
const (
	OutcomeHandled       = "handled"
	OutcomeHandleFailed  = "handle_failed"
	OutcomeNotFound      = "not_found"
	OutcomeExpired       = "expired"
	OutcomeAlreadyUsed   = "already_used"
	OutcomeMethodInvalid = "method_invalid"
	OutcomeRejected      = "rejected"
)

// Input is what a flow sees once a code has been resolved.
type Input[D, M, B any] struct {
	Project *project.Project
	CodeID  string
	Data    D
	Method  M
	Body    B

	// UserID is empty when the request carried no bearer token.
	UserID kernel.UserID
}

// Issued is a freshly created code.
type Issued struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`

	// Link is the callback URL with ?code=<Code>, empty without a callback URL.
	Link string `json:"link,omitempty"`
}

// Flow describes one kind of code. D is the data stored at creation, M the
// method checked at redemption, B the redemption request body and R the
// response of Handle. D and M may implement Validate() error.
type Flow[D, M, B, R any] struct {
	Type Type

	// Send dispatches a created code. Only SendCode calls it.
	Send func(ctx context.Context, p *project.Project, issued Issued, data D, method M) error

	// Validate is an optional precondition checked before the claim. It must
	// not have side effects.
	Validate func(ctx context.Context, in Input[D, M, B]) error

	// ValidateBody checks the redemption body before the claim. Check and
	// Details skip it.
	ValidateBody func(body B) error

	// RequireUser makes Consume reject requests without a user before the claim.
	RequireUser bool

	Handle func(ctx context.Context, in Input[D, M, B]) (R, error)

	// Details, when set, returns information about an unconsumed code.
	Details func(ctx context.Context, in Input[D, M, B]) (any, error)
}

type Option func(*options)

type options struct {
	metrics    *metricsx.Metrics
	defaultTTL time.Duration
	now        func() time.Time
}

func WithMetrics(m *metricsx.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithDefaultTTL sets the expiry of codes created without ExpiresIn.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Handler runs the create / consume lifecycle of one Flow.
type Handler[D, M, B, R any] struct {
	flow     Flow[D, M, B, R]
	codes    Repository
	projects project.Repository
	opts     options
}

func NewHandler[D, M, B, R any](flow Flow[D, M, B, R], codes Repository, projects project.Repository, opts ...Option) *Handler[D, M, B, R] {
	if !flow.Type.IsValid() || flow.Handle == nil {
		panic(fmt.Sprintf("verification: invalid flow %q", flow.Type))
	}
	o := options{defaultTTL: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Handler[D, M, B, R]{flow: flow, codes: codes, projects: projects, opts: o}
}

func (h *Handler[D, M, B, R]) Type() Type { return h.flow.Type }

func (h *Handler[D, M, B, R]) HasDetails() bool { return h.flow.Details != nil }

// CreateRequest creates a code. A nil ExpiresIn uses the default TTL; zero
// creates a code that is already expired.
type CreateRequest[D, M any] struct {
	TenantID    kernel.TenantID
	Data        D
	Method      M
	CallbackURL string
	ExpiresIn   *time.Duration
}

// CreateCode stores a new unused code. It never calls Send.
func (h *Handler[D, M, B, R]) CreateCode(ctx context.Context, req CreateRequest[D, M]) (*Issued, error) {
	p, err := h.projects.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	return h.create(ctx, p, req)
}

// SendCode is CreateCode followed by the flow's Send.
func (h *Handler[D, M, B, R]) SendCode(ctx context.Context, req CreateRequest[D, M]) (*Issued, error) {
	if h.flow.Send == nil {
		return nil, errx.Assertion("flow cannot send codes").WithDetail("type", string(h.flow.Type))
	}
	p, err := h.projects.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	issued, err := h.create(ctx, p, req)
	if err != nil {
		return nil, err
	}
	if err := h.flow.Send(ctx, p, *issued, req.Data, req.Method); err != nil {
		return nil, err
	}
	return issued, nil
}

func (h *Handler[D, M, B, R]) create(ctx context.Context, p *project.Project, req CreateRequest[D, M]) (*Issued, error) {
	if err := validate(&req.Data); err != nil {
		return nil, errx.Assertionf(err, "verification data does not match its flow").
			WithDetail("type", string(h.flow.Type))
	}
	if err := validate(&req.Method); err != nil {
		return nil, ErrMethodInvalid().WithCause(err)
	}

	var link *url.URL
	if req.CallbackURL != "" {
		if err := p.CheckRedirect(req.CallbackURL); err != nil {
			return nil, err
		}
		u, err := url.Parse(req.CallbackURL)
		if err != nil {
			return nil, project.ErrRedirectURLNotWhitelisted(req.CallbackURL)
		}
		link = u
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		return nil, errx.Wrap(err, "encode verification data", errx.TypeInternal)
	}
	method, err := json.Marshal(req.Method)
	if err != nil {
		return nil, errx.Wrap(err, "encode verification method", errx.TypeInternal)
	}
	id, err := iam.RandomCode(codeBytes)
	if err != nil {
		return nil, err
	}

	ttl := h.opts.defaultTTL
	if req.ExpiresIn != nil {
		ttl = *req.ExpiresIn
	}
	now := h.opts.now().UTC()
	code := &Code{
		ID:        id,
		TenantID:  p.ID,
		Type:      h.flow.Type,
		Data:      data,
		Method:    method,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := h.codes.Create(ctx, code); err != nil {
		return nil, err
	}

	issued := &Issued{Code: id, ExpiresAt: code.ExpiresAt}
	if link != nil {
		q := link.Query()
		q.Set("code", id)
		link.RawQuery = q.Encode()
		issued.Link = link.String()
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"tenant_id": p.ID.String(),
		"type":      string(h.flow.Type),
		"code_ref":  codeRef(id),
	}).Debug("verification code created")
	return issued, nil
}

// ConsumeRequest redeems a code. A nil Method redeems with the method stored
// at creation.
type ConsumeRequest[B any] struct {
	TenantID kernel.TenantID
	Code     string
	Method   json.RawMessage
	Body     B
	UserID   kernel.UserID
}

// Consume resolves the code, runs Validate, claims the code with one
// conditional write and only then runs Handle. A failed Handle leaves the
// code consumed.
func (h *Handler[D, M, B, R]) Consume(ctx context.Context, req ConsumeRequest[B]) (R, error) {
	var zero R

	in, err := h.resolve(ctx, req)
	if err == nil && h.flow.RequireUser && req.UserID.IsEmpty() {
		err = iam.ErrUserRequired()
	}
	if err == nil && h.flow.ValidateBody != nil {
		if verr := h.flow.ValidateBody(req.Body); verr != nil {
			err = verr
		}
	}
	if err != nil {
		h.record(ctx, req, outcomeOf(err), err)
		return zero, err
	}

	at := h.opts.now().UTC()
	claimed, err := h.codes.Claim(ctx, req.TenantID, in.CodeID, at)
	if err != nil {
		return zero, err
	}
	if !claimed {
		err := h.claimRefused(ctx, req.TenantID, in.CodeID, at)
		h.record(ctx, req, outcomeOf(err), err)
		return zero, err
	}

	resp, err := h.flow.Handle(ctx, *in)
	if err != nil {
		h.record(ctx, req, OutcomeHandleFailed, err)
		return zero, err
	}
	h.record(ctx, req, OutcomeHandled, nil)
	return resp, nil
}

// claimRefused tells a code that expired after resolve from one another
// consumer claimed first.
func (h *Handler[D, M, B, R]) claimRefused(ctx context.Context, tenantID kernel.TenantID, id string, at time.Time) error {
	code, err := h.codes.FindByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !code.IsUsed() && code.IsExpired(at) {
		return ErrCodeExpired()
	}
	return ErrCodeAlreadyUsed()
}

// Check reports whether Consume would get past every precondition, without
// claiming the code.
func (h *Handler[D, M, B, R]) Check(ctx context.Context, req ConsumeRequest[B]) error {
	_, err := h.resolve(ctx, req)
	return err
}

func (h *Handler[D, M, B, R]) Details(ctx context.Context, req ConsumeRequest[B]) (any, error) {
	if h.flow.Details == nil {
		return nil, errx.Assertion("flow has no details").WithDetail("type", string(h.flow.Type))
	}
	in, err := h.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.flow.Details(ctx, *in)
}

// resolve runs every read-only step of consumption, in order: not found,
// expired, already used, method, validate.
func (h *Handler[D, M, B, R]) resolve(ctx context.Context, req ConsumeRequest[B]) (*Input[D, M, B], error) {
	id := strings.ToLower(strings.TrimSpace(req.Code))
	if id == "" {
		return nil, ErrCodeNotFound()
	}

	p, err := h.projects.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	code, err := h.codes.FindByID(ctx, req.TenantID, id)
	if err != nil {
		return nil, err
	}
	if code.Type != h.flow.Type {
		return nil, ErrCodeNotFound()
	}
	if code.IsExpired(h.opts.now()) {
		return nil, ErrCodeExpired()
	}
	if code.IsUsed() {
		return nil, ErrCodeAlreadyUsed()
	}

	var stored M
	if err := decodeStrict(code.Method, &stored); err != nil {
		return nil, ErrMethodInvalid().WithCause(err)
	}
	method := stored
	if len(req.Method) > 0 {
		var supplied M
		if err := decodeStrict(req.Method, &supplied); err != nil {
			return nil, ErrMethodInvalid().WithCause(err)
		}
		if !reflect.DeepEqual(supplied, stored) {
			return nil, ErrMethodInvalid().WithDetail("reason", "method does not match the code")
		}
		method = supplied
	}

	var data D
	if err := decodeStrict(code.Data, &data); err != nil {
		return nil, errx.Assertionf(err, "stored verification data does not match its flow").
			WithDetail("type", string(code.Type)).
			WithDetail("code_ref", codeRef(id))
	}

	in := &Input[D, M, B]{
		Project: p,
		CodeID:  id,
		Data:    data,
		Method:  method,
		Body:    req.Body,
		UserID:  req.UserID,
	}
	if h.flow.Validate != nil {
		if err := h.flow.Validate(ctx, *in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (h *Handler[D, M, B, R]) record(ctx context.Context, req ConsumeRequest[B], outcome string, err error) {
	h.opts.metrics.VerificationConsumed(string(h.flow.Type), outcome)

	entry := logx.WithContext(ctx).WithFields(logx.Fields{
		"tenant_id": req.TenantID.String(),
		"type":      string(h.flow.Type),
		"code_ref":  codeRef(strings.ToLower(strings.TrimSpace(req.Code))),
		"outcome":   outcome,
	})
	switch {
	case err == nil:
		entry.Info("verification code consumed")
	case outcome == OutcomeHandleFailed && !isClientFault(err):
		entry.WithError(err).Error("verification handler failed after claim, code stays consumed")
	case outcome == OutcomeHandleFailed:
		entry.WithError(err).Info("verification handler refused after claim, code stays consumed")
	default:
		entry.WithError(err).Debug("verification code rejected")
	}
}

// isClientFault reports whether a Handle failure is an answer to the caller,
// such as a second factor being required.
func isClientFault(err error) bool {
	var e *errx.Error
	return errx.As(err, &e) && !e.Type.IsServerFault()
}

func outcomeOf(err error) string {
	switch {
	case errx.HasCode(err, CodeNotFound):
		return OutcomeNotFound
	case errx.HasCode(err, CodeExpired):
		return OutcomeExpired
	case errx.HasCode(err, CodeAlreadyUsed):
		return OutcomeAlreadyUsed
	case errx.HasCode(err, CodeMethodInvalid):
		return OutcomeMethodInvalid
	default:
		return OutcomeRejected
	}
}

// codeRef identifies a code in logs without revealing it.
func codeRef(id string) string {
	if id == "" {
		return ""
	}
	return iam.HashSecret(id)[:12]
}

type validator interface {
	Validate() error
}

func validate(v any) error {
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}

// decodeStrict decodes raw into v rejecting unknown fields and trailing data,
// then runs v's Validate.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return validate(v)
}
