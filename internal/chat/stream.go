package chat

import (
	"context"
	"iter"
	"strings"
	"time"
)

// Stream replays a completed reply chunk by chunk. It is lazy, finite and can be
// consumed once, by a single goroutine.
type Stream struct {
	ctx     context.Context
	chunks  []string
	pause   time.Duration
	next    int
	current string
	err     error
	done    bool
}

func newStream(ctx context.Context, text string, pause time.Duration) *Stream {
	return &Stream{
		ctx:    ctx,
		chunks: SplitChunks(text),
		pause:  pause,
	}
}

// Next advances to the next chunk, waiting the pause first unless it is the first
// one. It returns false when the stream is exhausted or its context is done.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if s.next >= len(s.chunks) {
		s.finish(nil)
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return false
	}
	if s.next > 0 && s.pause > 0 {
		timer := time.NewTimer(s.pause)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.finish(s.ctx.Err())
			return false
		case <-timer.C:
		}
	}
	s.current = s.chunks[s.next]
	s.next++
	return true
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() string {
	return s.current
}

// Err returns the context error if the stream was cancelled, nil otherwise.
func (s *Stream) Err() error {
	return s.err
}

// Emitted is the number of chunks handed out so far.
func (s *Stream) Emitted() int {
	return s.next
}

// Len is the total number of chunks of the reply.
func (s *Stream) Len() int {
	return len(s.chunks)
}

// Close stops the stream; later calls to Next return false.
func (s *Stream) Close() {
	s.finish(nil)
}

// All ranges over the remaining chunks. Breaking out of the loop closes the stream.
func (s *Stream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.Next() {
			if !yield(s.current) {
				s.Close()
				return
			}
		}
	}
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for chunk := range s.All() {
		sb.WriteString(chunk)
	}
	return sb.String(), s.Err()
}

func (s *Stream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.current = ""
	s.err = err
}
