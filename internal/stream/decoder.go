// internal/stream/decoder.go
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"rpchat/internal/logger"
)

// ErrInterrupted is reported when the body ends without a terminal event
var ErrInterrupted = errors.New("connection interrupted: stream ended before completion")

var dataPrefix = []byte("data:")

// Decoder turns an event-stream body into Events.
//
// Only complete lines are parsed: a frame split across reads is held until its
// newline arrives. Malformed payloads are logged, counted and skipped. After a
// terminal event the decoder stops reading and closes the body. A body that
// ends early, or fails, yields one synthetic error event.
type Decoder struct {
	br     *bufio.Reader
	closer io.Closer
	log    *logrus.Entry

	done      bool
	err       error
	malformed int
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the entry used for skipped frames
func WithLogger(entry *logrus.Entry) Option {
	return func(d *Decoder) {
		d.log = entry
	}
}

// NewDecoder reads frames from r. If r is an io.Closer it is closed when the
// stream finishes.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		br: bufio.NewReader(r),
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.WithComponent("stream")
	}
	return d
}

// Next returns the next event. It returns false once the stream is finished.
func (d *Decoder) Next() (Event, bool) {
	for !d.done {
		line, err := d.br.ReadBytes('\n')
		if err != nil {
			if len(line) > 0 {
				d.log.WithField("bytes", len(line)).Debug("discarding incomplete trailing line")
			}
			d.finish()
			if errors.Is(err, io.EOF) {
				return Event{Type: TypeError, Error: ErrInterrupted.Error(), Synthetic: true}, true
			}
			d.err = err
			return Event{Type: TypeError, Error: err.Error(), Synthetic: true}, true
		}

		ev, ok := d.parse(line)
		if !ok {
			continue
		}
		if ev.Terminal() {
			d.finish()
		}
		return ev, true
	}
	return Event{}, false
}

// All ranges over the remaining events. Breaking out of the loop closes the decoder.
func (d *Decoder) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := d.Next()
			if !ok {
				return
			}
			if !yield(ev) {
				d.Close()
				return
			}
		}
	}
}

// Err returns the read error that ended the stream, if it was not a clean EOF
func (d *Decoder) Err() error {
	return d.err
}

// Malformed is the number of frames skipped because their payload did not decode
func (d *Decoder) Malformed() int {
	return d.malformed
}

// Close stops the decoder and releases the body
func (d *Decoder) Close() error {
	d.finish()
	return d.closeErr
}

func (d *Decoder) finish() {
	d.done = true
	d.closeOnce.Do(func() {
		if d.closer != nil {
			d.closeErr = d.closer.Close()
		}
	})
}

func (d *Decoder) parse(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))

	// blank separators, comments and non-data fields carry nothing for us
	if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}

	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return Event{}, false
	}

	var ev Event
	if err := sonic.Unmarshal(payload, &ev); err != nil {
		d.malformed++
		d.log.WithError(err).WithField("payload", string(payload)).Warn("skipping malformed frame")
		return Event{}, false
	}

	if !ev.Type.Known() {
		d.log.WithField("type", ev.Type).Debug("skipping unknown event type")
		return Event{}, false
	}

	return ev, true
}
