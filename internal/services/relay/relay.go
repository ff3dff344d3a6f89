package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/deepgram/readme-relay/internal/domain/profile/models"
	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/internal/services/prompt"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// ErrUpstreamUnavailable wraps every failure to establish the upstream stream.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Reasons a relay ended, reported in Result.Reason.
const (
	ReasonDone          = "done"
	ReasonEOF           = "eof"
	ReasonUpstreamError = "upstream_error"
	ReasonClientGone    = "client_gone"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
)

// Upstream opens a streaming chat completion and returns its unread body.
type Upstream interface {
	OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error)
}

// Options are fixed at construction; none of them come from the request.
type Options struct {
	Model       string
	Temperature float32
	// Timeout bounds a whole relay. Zero means only the caller's context applies.
	Timeout time.Duration
}

type Relay struct {
	upstream Upstream
	opts     Options
}

func New(upstream Upstream, opts Options) *Relay {
	return &Relay{
		upstream: upstream,
		opts:     opts,
	}
}

// Result summarises a finished relay.
type Result struct {
	State    State
	Reason   string
	Chunks   int
	Bytes    int
	Duration time.Duration
	Err      error
}

// Stream is an established upstream stream waiting to be forwarded.
type Stream struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	decoder *Decoder
	started time.Time

	mu    sync.Mutex
	state State
	once  sync.Once
}

// Open builds the prompt and issues the streaming request. Cancelling ctx
// cancels the upstream request for the lifetime of the returned stream. Any
// failure before the upstream answers with a success status is reported as
// ErrUpstreamUnavailable and nothing is left open.
func (r *Relay) Open(ctx context.Context, id string, req *models.ProfileRequest) (*Stream, error) {
	var cancel context.CancelFunc
	if r.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s := &Stream{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		state:   StateIdle,
	}

	p := prompt.Build(req)
	logger.Debug(logger.PROMPT, "Prompt for %s: %s", id, p.User)

	s.setState(StateRequesting)
	body, err := r.upstream.OpenStream(ctx, openai.ChatCompletionRequest{
		Model: r.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: r.opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		s.setState(StateAborted)
		cancel()
		log.Error().Err(err).Str("request_id", id).Msg("Failed to open upstream stream")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	s.body = body
	s.decoder = NewDecoder(body)
	s.setState(StateStreaming)

	log.Info().Str("request_id", id).Str("model", r.opts.Model).Msg("Upstream stream established")
	return s, nil
}

// ID is the request identifier the stream was opened with.
func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Cancel stops the upstream request; a running Forward ends as aborted.
func (s *Stream) Cancel() {
	s.cancel()
}

// Forward hands every fragment to emit as soon as it is decoded, in arrival
// order, and returns once the stream reaches a terminal state. An emit error
// means the client is gone and aborts the relay. Nothing is retried.
func (s *Stream) Forward(emit func([]byte) error) Result {
	defer s.Close()
	metrics.RecordStart()

	res := Result{}
	for {
		fragment, err := s.decoder.Next()
		if err != nil {
			res.State, res.Reason, res.Err = s.classify(err)
			break
		}

		if err := emit([]byte(fragment)); err != nil {
			res.State, res.Reason, res.Err = StateAborted, ReasonClientGone, err
			break
		}
		res.Chunks++
		res.Bytes += len(fragment)
	}

	res.Duration = time.Since(s.started)
	s.setState(res.State)
	metrics.RecordEnd(res.State.String(), res.Duration, res.Chunks, res.Bytes)

	event := log.Info()
	if res.State == StateAborted {
		event = log.Warn().Err(res.Err)
	}
	event.
		Str("request_id", s.id).
		Str("state", res.State.String()).
		Str("reason", res.Reason).
		Int("chunks", res.Chunks).
		Int("bytes", res.Bytes).
		Dur("duration", res.Duration).
		Msg("Relay finished")

	return res
}

func (s *Stream) classify(err error) (State, string, error) {
	switch {
	case errors.Is(err, ErrDone):
		return StateCompleted, ReasonDone, nil
	case errors.Is(err, io.EOF):
		return StateCompleted, ReasonEOF, nil
	}

	switch {
	case errors.Is(s.ctx.Err(), context.DeadlineExceeded):
		return StateAborted, ReasonTimeout, err
	case errors.Is(s.ctx.Err(), context.Canceled):
		return StateAborted, ReasonCanceled, err
	default:
		return StateAborted, ReasonUpstreamError, err
	}
}

// Close releases the upstream body. Forward calls it; callers that never
// forward must call it themselves.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		if !s.state.Terminal() {
			s.state = StateAborted
		}
		s.mu.Unlock()

		s.cancel()
		if err := s.body.Close(); err != nil {
			logger.Debug(logger.RELAY, "Failed to close upstream body for %s: %v", s.id, err)
		}
	})
}
