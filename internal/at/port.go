package at

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTimeout       = errors.New("AT command timed out")
	ErrCommandFailed = errors.New("AT command failed")
)

// DefaultURCQueueSize bounds the number of unsolicited lines held between reads.
const DefaultURCQueueSize = 16

const readSlice = 100 * time.Millisecond

// Conn is the byte channel to the modem. A Read that times out returns 0, nil.
type Conn interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// Port serialises AT exchanges over a Conn. Unsolicited result codes seen
// while a command is waiting are queued and handed out by ReadURCs.
type Port struct {
	mu    sync.Mutex
	conn  Conn
	pend  []byte
	urcs  []string
	max   int
	isURC func(string) bool
	log   func(string, ...interface{})
	debug bool
}

// Option configures a Port.
type Option func(*Port)

// WithURCMatcher sets the predicate that classifies a line as unsolicited.
func WithURCMatcher(fn func(string) bool) Option {
	return func(p *Port) { p.isURC = fn }
}

// WithQueueSize sets the URC queue bound.
func WithQueueSize(n int) Option {
	return func(p *Port) {
		if n > 0 {
			p.max = n
		}
	}
}

// WithDebug logs every line exchanged.
func WithDebug(debug bool) Option {
	return func(p *Port) { p.debug = debug }
}

func NewPort(conn Conn, logger func(string, ...interface{}), opts ...Option) *Port {
	p := &Port{
		conn:  conn,
		max:   DefaultURCQueueSize,
		isURC: func(string) bool { return false },
		log:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Port) logf(format string, v ...interface{}) {
	if p.log != nil {
		p.log("[AT] "+format, v...)
	}
}

func (p *Port) debugf(format string, v ...interface{}) {
	if p.debug {
		p.logf(format, v...)
	}
}

// Close closes the underlying connection if it can be closed.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Command sends cmd and collects the information lines of its response up to
// the final OK. ERROR and +CME/+CMS ERROR results return ErrCommandFailed.
func (p *Port) Command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.write(cmd + "\r"); err != nil {
		return nil, err
	}
	return p.readResponse(ctx, cmd)
}

// CommandWithPayload sends cmd, waits for the '>' prompt, writes payload and
// then reads the response as Command does.
func (p *Port) CommandWithPayload(ctx context.Context, cmd, payload string, timeout time.Duration) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.write(cmd + "\r"); err != nil {
		return nil, err
	}
	if err := p.waitPrompt(ctx, cmd); err != nil {
		return nil, err
	}
	if err := p.write(payload); err != nil {
		return nil, err
	}
	return p.readResponse(ctx, cmd)
}

// ReadURCs returns queued unsolicited lines plus any that arrive within
// window. Other lines read during the window are discarded.
func (p *Port) ReadURCs(ctx context.Context, window time.Duration) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	for {
		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Cause(err) == ErrTimeout {
				break
			}
			return p.takeURCs(), err
		}
		if p.isURC(line) {
			p.queue(line)
			continue
		}
		p.debugf("Discarding line outside command: %q", line)
	}
	return p.takeURCs(), nil
}

func (p *Port) takeURCs() []string {
	out := p.urcs
	p.urcs = nil
	return out
}

func (p *Port) queue(line string) {
	if len(p.urcs) >= p.max {
		p.logf("URC queue full, dropping %q", p.urcs[0])
		p.urcs = p.urcs[1:]
	}
	p.urcs = append(p.urcs, line)
}

func (p *Port) write(s string) error {
	p.debugf("-> %q", s)
	if _, err := p.conn.Write([]byte(s)); err != nil {
		return errors.Wrap(err, "failed to write to modem")
	}
	return nil
}

func (p *Port) readResponse(ctx context.Context, cmd string) ([]string, error) {
	var lines []string
	for {
		line, err := p.readLine(ctx)
		if err != nil {
			return lines, errors.Wrapf(err, "%s", cmd)
		}
		switch {
		case line == cmd:
			// echo
		case p.isURC(line):
			p.queue(line)
		case line == "OK":
			return lines, nil
		case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"), strings.HasPrefix(line, "+CMS ERROR"):
			return lines, errors.Wrapf(ErrCommandFailed, "%s: %s", cmd, line)
		default:
			lines = append(lines, line)
		}
	}
}

func (p *Port) waitPrompt(ctx context.Context, cmd string) error {
	for {
		p.pend = bytes.TrimLeft(p.pend, "\r\n")
		if len(p.pend) > 0 && p.pend[0] == '>' {
			p.pend = bytes.TrimLeft(p.pend[1:], " ")
			return nil
		}
		if i := bytes.IndexByte(p.pend, '\n'); i >= 0 {
			line := p.cut(i)
			switch {
			case line == "" || line == cmd:
			case p.isURC(line):
				p.queue(line)
			case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"):
				return errors.Wrapf(ErrCommandFailed, "%s: %s", cmd, line)
			default:
				p.debugf("Unexpected line before prompt: %q", line)
			}
			continue
		}
		if err := p.fill(ctx); err != nil {
			return errors.Wrapf(err, "%s: waiting for prompt", cmd)
		}
	}
}

// readLine returns the next non-empty line with CR/LF stripped.
func (p *Port) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(p.pend, '\n'); i >= 0 {
			line := p.cut(i)
			if line == "" {
				continue
			}
			p.debugf("<- %q", line)
			return line, nil
		}
		if err := p.fill(ctx); err != nil {
			return "", err
		}
	}
}

// cut removes the first i+1 bytes of pending input and returns them as an
// owned, trimmed string.
func (p *Port) cut(i int) string {
	line := strings.TrimSpace(string(p.pend[:i]))
	p.pend = p.pend[i+1:]
	return line
}

// fill reads at most one slice of input into the pending buffer.
func (p *Port) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return ErrTimeout
		}
		return err
	}

	wait := readSlice
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if wait <= 0 {
		return ErrTimeout
	}
	if err := p.conn.SetReadTimeout(wait); err != nil {
		return errors.Wrap(err, "failed to set read timeout")
	}

	buf := make([]byte, 256)
	n, err := p.conn.Read(buf)
	if n > 0 {
		p.pend = append(p.pend, buf[:n]...)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read from modem")
	}
	return nil
}
