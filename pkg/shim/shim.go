// Package shim redirects a page's credential calls through a Messenger so a
// privileged peer can approve, deny or abort each ceremony before the native
// implementation runs.
package shim

import (
	"context"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/messenger"
)

// CredentialsContainer is the navigator.credentials surface the shim wraps.
type CredentialsContainer interface {
	Create(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error)
	Get(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error)
}

// Requester sends a request and waits for the correlated response.
// *messenger.Messenger implements it.
type Requester interface {
	Request(ctx context.Context, msg message.Message, opts ...messenger.RequestOption) (message.Message, error)
}

// Policy decides what an answered creation request allows.
type Policy int

const (
	// PolicyRequireApproval calls the native create only on approved: true.
	PolicyRequireApproval Policy = iota
	// PolicyProceedAlways calls the native create once the peer answers,
	// whatever the decision.
	PolicyProceedAlways
)

// GetMode selects how credential retrieval is handled.
type GetMode int

const (
	// GetPassThrough calls the native get without mediation.
	GetPassThrough GetMode = iota
	// GetMediated waits for the peer's CredentialGetResponse first.
	GetMediated
)

// Option configures a Shim.
type Option func(*Shim)

func WithPolicy(p Policy) Option {
	return func(s *Shim) { s.policy = p }
}

func WithGetMode(m GetMode) Option {
	return func(s *Shim) { s.getMode = m }
}

// Shim replaces the native entry points. It implements CredentialsContainer.
type Shim struct {
	native    CredentialsContainer
	requester Requester
	origin    string
	policy    Policy
	getMode   GetMode
}

var _ CredentialsContainer = (*Shim)(nil)

// Install wraps native. origin is the page's own origin, reported to the
// peer in every creation request.
func Install(native CredentialsContainer, requester Requester, origin string, opts ...Option) *Shim {
	s := &Shim{native: native, requester: requester, origin: origin}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Native returns the wrapped implementation.
func (s *Shim) Native() CredentialsContainer { return s.native }

// Create mediates a credential creation. The native create runs only after
// the peer has answered, and never when mediation fails.
func (s *Shim) Create(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error) {
	params, err := MapCreationOptions(opts, s.origin)
	if err != nil {
		return nil, &Error{Name: NameTypeError, Err: err}
	}
	var reqOpts []messenger.RequestOption
	if d := ceremonyTimeout(params.Timeout); d > 0 {
		reqOpts = append(reqOpts, messenger.WithTimeout(d))
	}
	resp, err := s.requester.Request(ctx, message.CredentialCreationRequest{Data: params}, reqOpts...)
	if err != nil {
		return nil, mediationError(err)
	}
	decision, ok := resp.(message.CredentialCreationResponse)
	if !ok {
		return nil, &Error{Name: NameUnknown, Err: fmt.Errorf("%w: got %s", messenger.ErrProtocolMismatch, resp.Type())}
	}
	if !decision.Approved && s.policy != PolicyProceedAlways {
		return nil, &Error{Name: NameNotAllowed, Err: ErrDenied}
	}
	return s.native.Create(ctx, opts)
}

// Get retrieves a credential, mediated or not according to the GetMode.
func (s *Shim) Get(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error) {
	if s.getMode == GetPassThrough {
		return s.native.Get(ctx, opts)
	}
	var reqOpts []messenger.RequestOption
	if opts != nil {
		if d := ceremonyTimeout(opts.Response.Timeout); d > 0 {
			reqOpts = append(reqOpts, messenger.WithTimeout(d))
		}
	}
	resp, err := s.requester.Request(ctx, message.CredentialGetRequest{}, reqOpts...)
	if err != nil {
		return nil, mediationError(err)
	}
	if _, ok := resp.(message.CredentialGetResponse); !ok {
		return nil, &Error{Name: NameUnknown, Err: fmt.Errorf("%w: got %s", messenger.ErrProtocolMismatch, resp.Type())}
	}
	return s.native.Get(ctx, opts)
}

// ceremonyTimeout converts a page-supplied timeout in milliseconds, capped
// at messenger.DefaultTimeout. Zero means no override.
func ceremonyTimeout(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	if int64(ms) >= int64(messenger.DefaultTimeout/time.Millisecond) {
		return messenger.DefaultTimeout
	}
	return time.Duration(ms) * time.Millisecond
}
