package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/deepgram/readme-relay/internal/domain/profile/models"
	"github.com/deepgram/readme-relay/internal/services/prompt"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\ndata: [DONE]\n\n"

// fakeUpstream records the request and serves body through open.
type fakeUpstream struct {
	open func(ctx context.Context) (io.ReadCloser, error)
	req  openai.ChatCompletionRequest
	ctx  context.Context
}

func (f *fakeUpstream) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	f.req = req
	f.ctx = ctx
	return f.open(ctx)
}

func bodyOf(s string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func testRequest() *models.ProfileRequest {
	return &models.ProfileRequest{
		FormData: &models.FormData{ProfessionalTitle: "Staff Engineer", Expertise: []string{"Go"}},
		User:     &models.User{Email: "dev@example.com", Metadata: models.UserMetadata{UserName: "dev"}},
	}
}

type collector struct {
	chunks []string
}

func (c *collector) emit(b []byte) error {
	c.chunks = append(c.chunks, string(b))
	return nil
}

func (c *collector) String() string {
	return strings.Join(c.chunks, "")
}

func TestRelayForwardsHello(t *testing.T) {
	upstream := &fakeUpstream{open: bodyOf(helloStream)}
	r := New(upstream, Options{Model: "gpt-4-turbo-preview", Temperature: 0.7, Timeout: time.Minute})

	stream, err := r.Open(context.Background(), "req-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, stream.State())
	assert.Equal(t, "req-1", stream.ID())

	var c collector
	res := stream.Forward(c.emit)

	assert.Equal(t, []string{"Hel", "lo"}, c.chunks)
	assert.Equal(t, "Hello", c.String())
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, ReasonDone, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 5, res.Bytes)
	assert.Equal(t, StateCompleted, stream.State())
}

func TestRelaySendsBuiltPrompt(t *testing.T) {
	upstream := &fakeUpstream{open: bodyOf("data: [DONE]\n")}
	r := New(upstream, Options{Model: "gpt-4o", Temperature: 0.3})

	req := testRequest()
	stream, err := r.Open(context.Background(), "req-2", req)
	require.NoError(t, err)
	stream.Forward(func([]byte) error { return nil })

	want := prompt.Build(req)
	assert.Equal(t, "gpt-4o", upstream.req.Model)
	assert.InDelta(t, 0.3, upstream.req.Temperature, 0.0001)
	assert.True(t, upstream.req.Stream)
	require.Len(t, upstream.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, upstream.req.Messages[0].Role)
	assert.Equal(t, want.System, upstream.req.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, upstream.req.Messages[1].Role)
	assert.Equal(t, want.User, upstream.req.Messages[1].Content)
}

func TestRelayToleratesBadLines(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{}}]}\n\n" +
		"data: {malformed\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"still \"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"here\"}}]}\n\n" +
		"data: [DONE]\n\n"

	r := New(&fakeUpstream{open: bodyOf(input)}, Options{})
	stream, err := r.Open(context.Background(), "req-3", testRequest())
	require.NoError(t, err)

	var c collector
	res := stream.Forward(c.emit)
	assert.Equal(t, "still here", c.String())
	assert.Equal(t, StateCompleted, res.State)
}

func TestRelayNaturalEndIsCompleted(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"no sentinel\"}}]}\n"

	r := New(&fakeUpstream{open: bodyOf(input)}, Options{})
	stream, err := r.Open(context.Background(), "req-4", testRequest())
	require.NoError(t, err)

	var c collector
	res := stream.Forward(c.emit)
	assert.Equal(t, "no sentinel", c.String())
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, ReasonEOF, res.Reason)
}

func TestRelayUpstreamUnavailable(t *testing.T) {
	cause := errors.New("status 503")
	upstream := &fakeUpstream{open: func(context.Context) (io.ReadCloser, error) { return nil, cause }}
	r := New(upstream, Options{})

	stream, err := r.Open(context.Background(), "req-5", testRequest())
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Error(t, upstream.ctx.Err(), "request context must be released")
}

func TestRelayMidStreamFailureTruncates(t *testing.T) {
	boom := errors.New("connection reset by peer")
	upstream := &fakeUpstream{open: func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"),
			iotest.ErrReader(boom),
		)), nil
	}}
	r := New(upstream, Options{})

	stream, err := r.Open(context.Background(), "req-6", testRequest())
	require.NoError(t, err)

	var c collector
	res := stream.Forward(c.emit)
	assert.Equal(t, "Hel", c.String())
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, ReasonUpstreamError, res.Reason)
	assert.ErrorIs(t, res.Err, boom)
}

func TestRelayClientGone(t *testing.T) {
	gone := errors.New("broken pipe")
	r := New(&fakeUpstream{open: bodyOf(helloStream)}, Options{})

	stream, err := r.Open(context.Background(), "req-7", testRequest())
	require.NoError(t, err)

	calls := 0
	res := stream.Forward(func([]byte) error {
		calls++
		return gone
	})
	assert.Equal(t, 1, calls, "no fragment is attempted after the client is gone")
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, ReasonClientGone, res.Reason)
	assert.ErrorIs(t, res.Err, gone)
	assert.Equal(t, 0, res.Chunks)
}

// pipeUpstream serves a body the test writes to while the relay is running.
// The pipe is broken with the context error once the request context ends.
func pipeUpstream() (*fakeUpstream, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &fakeUpstream{open: func(ctx context.Context) (io.ReadCloser, error) {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}}, pw
}

func TestRelayForwardsBeforeBodyEnds(t *testing.T) {
	upstream, pw := pipeUpstream()
	r := New(upstream, Options{})

	stream, err := r.Open(context.Background(), "req-8", testRequest())
	require.NoError(t, err)

	received := make(chan string, 4)
	done := make(chan Result, 1)
	go func() {
		done <- stream.Forward(func(b []byte) error {
			received <- string(b)
			return nil
		})
	}()

	_, err = io.WriteString(pw, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "first", got)
	case <-time.After(2 * time.Second):
		t.Fatal("first fragment was not forwarded while the upstream body was still open")
	}

	// half a line, then the rest in a second write
	_, err = io.WriteString(pw, "data: {\"choices\":[{\"delta\":{\"con")
	require.NoError(t, err)
	_, err = io.WriteString(pw, "tent\":\"second\"}}]}\n\ndata: [DONE]\n\n")
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "second", got)
	case <-time.After(2 * time.Second):
		t.Fatal("second fragment was not forwarded")
	}

	select {
	case res := <-done:
		assert.Equal(t, StateCompleted, res.State)
		assert.Equal(t, 2, res.Chunks)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish after the sentinel")
	}
}

func TestRelayTimeout(t *testing.T) {
	upstream, _ := pipeUpstream()
	r := New(upstream, Options{Timeout: 50 * time.Millisecond})

	stream, err := r.Open(context.Background(), "req-9", testRequest())
	require.NoError(t, err)

	res := stream.Forward(func([]byte) error { return nil })
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestRelayClientDisconnectCancelsUpstream(t *testing.T) {
	upstream, _ := pipeUpstream()
	r := New(upstream, Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := r.Open(ctx, "req-10", testRequest())
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- stream.Forward(func([]byte) error { return nil }) }()

	cancel()

	select {
	case res := <-done:
		assert.Equal(t, StateAborted, res.State)
		assert.Equal(t, ReasonCanceled, res.Reason)
		assert.ErrorIs(t, upstream.ctx.Err(), context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelling the client context did not stop the relay")
	}
}

func TestStreamCloseWithoutForward(t *testing.T) {
	r := New(&fakeUpstream{open: bodyOf(helloStream)}, Options{})

	stream, err := r.Open(context.Background(), "req-11", testRequest())
	require.NoError(t, err)

	stream.Close()
	stream.Close()
	assert.Equal(t, StateAborted, stream.State())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateRequesting, "requesting", false},
		{StateStreaming, "streaming", false},
		{StateCompleted, "completed", true},
		{StateAborted, "aborted", true},
		{State(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}
