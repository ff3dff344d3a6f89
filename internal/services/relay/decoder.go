package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const (
	// MaxLineSize caps how much of a single event line is buffered while
	// waiting for its newline.
	MaxLineSize = 1 << 20

	readBufferSize = 64 << 10
)

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")

	// ErrDone is returned by Decoder.Next once the upstream sent its sentinel.
	ErrDone = errors.New("upstream stream done")
)

// Decoder pulls text fragments out of an upstream event stream as the bytes
// arrive. Lines split across reads are reassembled; nothing beyond the current
// line is buffered.
type Decoder struct {
	r       *bufio.Reader
	maxLine int
	line    []byte
	err     error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       bufio.NewReaderSize(r, readBufferSize),
		maxLine: MaxLineSize,
	}
}

// Next blocks until the next non-empty fragment is available. It returns
// ErrDone after the sentinel, io.EOF when the body ends without one, and any
// other error when reading the upstream body fails.
func (d *Decoder) Next() (string, error) {
	for d.err == nil {
		line, err := d.readLine()
		d.err = err

		if len(line) == 0 {
			continue
		}

		fragment, done := decodeLine(line)
		if done {
			d.err = ErrDone
			break
		}
		if fragment != "" {
			return fragment, nil
		}
	}
	return "", d.err
}

func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	oversized := false

	for {
		chunk, err := d.r.ReadSlice('\n')
		if !oversized {
			if len(d.line)+len(chunk) > d.maxLine {
				oversized = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, chunk...)
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}

		if oversized {
			logger.Warn(logger.RELAY, "Discarded upstream line longer than %d bytes", d.maxLine)
			metrics.RecordSkippedLine("oversized")
			return nil, err
		}
		return d.line, err
	}
}

// decodeLine extracts the fragment carried by one event line. done is true
// when the line is the end-of-stream sentinel.
func decodeLine(line []byte) (fragment string, done bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return "", false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := line[len(dataPrefix):]
	if bytes.Equal(payload, doneSentinel) {
		return "", true
	}

	var event openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &event); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			// a read can end mid-object; the line is dropped, not the stream
			logger.Debug(logger.RELAY, "Skipping malformed event line: %v", err)
			metrics.RecordSkippedLine("malformed")
			return "", false
		}
		logger.Warn(logger.RELAY, "Failed to process event line: %v", err)
		metrics.RecordSkippedLine("unexpected")
		return "", false
	}

	if len(event.Choices) == 0 {
		return "", false
	}
	return event.Choices[0].Delta.Content, false
}
