package transport

import (
	"io"
	"os"
	"sync"
)

// Port carries length-prefixed frames over a byte stream: a unix socket
// connection to the daemon, or the stdio pipe a browser opens to a native
// messaging host. Inbound events are labelled with the origin the port was
// created with, since a stream has no per-message sender.
type Port struct {
	rwc    io.ReadWriteCloser
	origin string
	events chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	errMu sync.Mutex
	err   error
}

// NewPort starts reading frames from rwc.
func NewPort(rwc io.ReadWriteCloser, origin string) *Port {
	p := &Port{
		rwc:    rwc,
		origin: origin,
		events: make(chan Event, 16),
		closed: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// Stdio returns a port over the process's stdin and stdout.
func Stdio(origin string) *Port {
	return NewPort(stdio{Reader: os.Stdin, Writer: os.Stdout}, origin)
}

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return os.Stdin.Close() }

func (p *Port) readLoop() {
	defer close(p.events)
	for {
		payload, err := ReadFrame(p.rwc)
		if err != nil {
			p.setErr(err)
			return
		}
		select {
		case p.events <- Event{Payload: payload, Origin: p.origin}:
		case <-p.closed:
			return
		}
	}
}

// Send writes payload as one frame.
func (p *Port) Send(payload []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return WriteFrame(p.rwc, payload)
}

// Events implements Transport.
func (p *Port) Events() <-chan Event {
	return p.events
}

// Close closes the underlying stream.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.rwc.Close()
	})
	return err
}

// Err returns the error that ended the read loop, io.EOF for a clean close.
func (p *Port) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Port) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.err = err
}
