package completion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/context-assistant/three.js/internal/logging"
)

// Stats are the counters reported with the terminal frame.
// Durations are nanoseconds, as sent by the server.
type Stats struct {
	PromptEvalCount    int   `json:"prompt_eval_count"`
	EvalCount          int   `json:"eval_count"`
	TotalDuration      int64 `json:"total_duration"`
	LoadDuration       int64 `json:"load_duration"`
	PromptEvalDuration int64 `json:"prompt_eval_duration"`
	EvalDuration       int64 `json:"eval_duration"`
}

// TotalTokens is prompt plus generated tokens.
func (s Stats) TotalTokens() int { return s.PromptEvalCount + s.EvalCount }

// TokensPerSecond is the generation rate, or 0 when no duration was reported.
func (s Stats) TokensPerSecond() float64 {
	if s.EvalDuration <= 0 {
		return 0
	}
	return float64(s.EvalCount) / time.Duration(s.EvalDuration).Seconds()
}

// Frame is one decoded stream line.
type Frame struct {
	Delta string
	Done  bool
	// Stats is set on the terminal frame only.
	Stats *Stats
}

type wireFrame struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
	Stats
}

// Stream is a lazy, finite, non-restartable sequence of frames.
// It is not safe for concurrent use except for Close.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	stop    func() bool

	closeOnce  sync.Once
	err        error
	done       bool
	terminated bool
	skipped    int
}

func newStream(ctx context.Context, body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	s := &Stream{ctx: ctx, body: body, scanner: scanner}
	// A blocked Read returns as soon as the body is closed.
	s.stop = context.AfterFunc(ctx, func() { _ = body.Close() })
	return s
}

// Next returns the next frame. It returns false once the terminal frame was
// returned, the body ended, or an error occurred; check Err afterwards.
func (s *Stream) Next() (Frame, bool) {
	if s.done {
		return Frame{}, false
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return s.fail(err)
		}
		if !s.scanner.Scan() {
			if err := s.ctx.Err(); err != nil {
				return s.fail(err)
			}
			if err := s.scanner.Err(); err != nil {
				return s.fail(fmt.Errorf("%w: read stream: %v", ErrNetwork, err))
			}
			s.done = true
			return Frame{}, false
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var wf wireFrame
		if err := json.Unmarshal([]byte(line), &wf); err != nil {
			s.skipped++
			logging.TransportDebug("skipping malformed stream line: %v", err)
			continue
		}
		if wf.Error != "" {
			return s.fail(fmt.Errorf("%w: server error: %s", ErrNetwork, wf.Error))
		}

		f := Frame{Done: wf.Done}
		if wf.Message != nil {
			f.Delta = wf.Message.Content
		}
		if wf.Done {
			stats := wf.Stats
			f.Stats = &stats
			s.terminated = true
			s.done = true
		}
		return f, true
	}
}

func (s *Stream) fail(err error) (Frame, bool) {
	s.err = err
	s.done = true
	return Frame{}, false
}

// Err returns the error that ended the stream, if any.
// A body that ends without a terminal frame is not an error here; see Terminated.
func (s *Stream) Err() error { return s.err }

// Terminated reports whether the terminal frame was received.
func (s *Stream) Terminated() bool { return s.terminated }

// Skipped returns the number of malformed lines ignored so far.
func (s *Stream) Skipped() int { return s.skipped }

// Close releases the response body. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		err = s.body.Close()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
