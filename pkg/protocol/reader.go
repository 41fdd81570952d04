package protocol

import (
	"bufio"
	"io"
	"iter"
)

// Reader accumulates bytes from a stream until whole frames are available.
// A single Read on the underlying conn may carry part of a frame or several
// frames; Reader hides both cases.
type Reader struct {
	br  *bufio.Reader
	err error
}

// NewReader returns a Reader buffering r
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next complete frame. After a failure every later call
// returns the same error: a stream that produced a bad frame is not resynced.
func (r *Reader) Next() (*Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	f, err := DecodeFrame(r.br)
	if err != nil {
		r.err = err
		return nil, err
	}
	return f, nil
}

// Frames yields frames until the stream fails. The final pair carries the
// error (io.EOF on clean close). Ranging again resumes where the previous
// loop stopped.
func (r *Reader) Frames() iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		for {
			f, err := r.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Messages is Frames followed by Parse
func (r *Reader) Messages() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for f, err := range r.Frames() {
			if err != nil {
				yield(nil, err)
				return
			}
			msg, err := Parse(f)
			if err != nil {
				r.err = err
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// ReadMessage reads and parses one frame
func (r *Reader) ReadMessage() (Message, error) {
	f, err := r.Next()
	if err != nil {
		return nil, err
	}
	msg, err := Parse(f)
	if err != nil {
		r.err = err
		return nil, err
	}
	return msg, nil
}
