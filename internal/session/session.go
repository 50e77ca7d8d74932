// Package session drives the activation round-trip loop: send a request,
// interpret the reply, and either finish or collect the additional input the
// server demands and resubmit.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devactivate/internal/activation"
	"devactivate/internal/fields"
)

// State is the position of a session in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingInput
	StateRecordReady
	StateAcknowledged
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateAwaitingInput:
		return "awaiting-input"
	case StateRecordReady:
		return "record-ready"
	case StateAcknowledged:
		return "acknowledged"
	case StateErrored:
		return "errored"
	default:
		return "invalid"
	}
}

// Loop guards. The protocol itself never bounds the resubmission loop, so a
// server that keeps demanding the same fields would spin forever without
// these.
var (
	// ErrStalled means a resubmission carried the exact field set of the
	// previous round; the exchange is not making progress.
	ErrStalled = errors.New("session stalled: field set unchanged between rounds")

	// ErrRoundLimit means the round cap was reached before a terminal
	// outcome.
	ErrRoundLimit = errors.New("session round limit reached")
)

// DefaultMaxRounds bounds the resubmission loop.
const DefaultMaxRounds = 10

// Transport performs one network exchange and returns the parsed response.
type Transport interface {
	Send(ctx context.Context, req *activation.Request) (*activation.Response, error)
}

// InputRequest describes one field the server demands a value for.
type InputRequest struct {
	Key         string
	Label       string // display name; Key when empty
	Placeholder string // hint, may be empty
	Secure      bool   // value must not be echoed
}

// Prompter obtains a replacement value for a required field. Implementations
// honoring Secure must suppress echo.
type Prompter interface {
	Prompt(ctx context.Context, req InputRequest) (string, error)
}

// Session runs one activation or deactivation attempt. Sessions share no
// state; run independent devices on independent sessions.
type Session struct {
	transport Transport
	prompter  Prompter
	log       *zap.Logger
	maxRounds int
	id        string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger; defaults to zap.NewNop.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxRounds overrides the resubmission cap.
func WithMaxRounds(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// New returns a session over the given transport. The prompter may be nil
// when the caller guarantees no input round will occur (e.g. handshake-only
// flows); a required field without a prompter fails the round.
func New(transport Transport, prompter Prompter, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		prompter:  prompter,
		log:       zap.NewNop(),
		maxRounds: DefaultMaxRounds,
		id:        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the terminal outcome of a session.
type Result struct {
	State       State
	Record      any                 // set when State == StateRecordReady
	Headers     []activation.Header // response headers of the terminal round
	Title       string
	Description string
}

// Run drives the round-trip loop to a terminal outcome. Transport, encoding
// and parsing failures abort the loop without mutating the last submitted
// request, so the caller can retry from it.
func (s *Session) Run(ctx context.Context, req *activation.Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", activation.ErrInternal)
	}
	log := s.log.With(zap.String("session", s.id))

	for round := 1; round <= s.maxRounds; round++ {
		log.Debug("sending activation request",
			zap.Int("round", round),
			zap.String("url", req.URL),
			zap.Int("fields", req.Fields.Len()))

		resp, err := s.transport.Send(ctx, req)
		if err != nil {
			return nil, err
		}

		log.Debug("received response",
			zap.Int("round", round),
			zap.Stringer("dialect", resp.Dialect),
			zap.Bool("ack", resp.IsActivationAck),
			zap.Bool("errors", resp.HasErrors),
			zap.Bool("auth_required", resp.IsAuthRequired))

		switch {
		case resp.HasErrors:
			return &Result{
				State:       StateErrored,
				Headers:     resp.Headers,
				Title:       resp.Title,
				Description: resp.Description,
			}, nil

		case resp.ActivationRecord != nil:
			return &Result{
				State:   StateRecordReady,
				Record:  resp.ActivationRecord,
				Headers: resp.Headers,
				Title:   resp.Title,
			}, nil

		case resp.IsActivationAck:
			return &Result{State: StateAcknowledged, Headers: resp.Headers}, nil
		}

		if resp.Fields.Len() == 0 {
			// no record, no ack, no error screen, nothing to fill
			return &Result{State: StateErrored, Headers: resp.Headers}, nil
		}

		next, err := s.nextRequest(ctx, req, resp)
		if err != nil {
			return nil, err
		}
		if next.Fields.Equal(req.Fields) {
			return nil, ErrStalled
		}
		req = next
	}

	return nil, ErrRoundLimit
}

// nextRequest builds the resubmission: server-returned fields seeded onto a
// fresh request carrying over client identity and URL, with every
// requires-input field replaced by a prompted value.
func (s *Session) nextRequest(ctx context.Context, prev *activation.Request, resp *activation.Response) (*activation.Request, error) {
	next := activation.NewRequest(prev.ClientType)
	next.SetURL(prev.URL)
	next.SetFieldsFromResponse(resp)

	for _, key := range resp.Fields.Keys() {
		if !resp.FieldRequiresInput(key) {
			continue
		}
		if s.prompter == nil {
			return nil, fmt.Errorf("%w: field %q requires input but no prompter is configured", activation.ErrInternal, key)
		}
		value, err := s.prompter.Prompt(ctx, InputRequest{
			Key:         key,
			Label:       resp.FieldLabel(key),
			Placeholder: resp.FieldPlaceholder(key),
			Secure:      resp.FieldSecureInput(key),
		})
		if err != nil {
			return nil, err
		}
		next.SetField(key, value)
	}
	return next, nil
}

// Handshake performs the single pre-activation round against the handshake
// endpoint. The reply is not an activation record but a field set the device
// consumes to produce its real activation info.
func (s *Session) Handshake(ctx context.Context, req *activation.Request) (*fields.Collection, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", activation.ErrInternal)
	}
	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.HasErrors {
		return nil, fmt.Errorf("handshake rejected: %s", firstNonEmpty(resp.Title, "server reported an error"))
	}
	return resp.Fields.Clone(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
