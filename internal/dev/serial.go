package dev

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
)

// Serial is the console device. It writes to the host's stdout by
// default; with a pseudo-terminal attached, a host terminal can hold a
// two-way session with the kernel.
type Serial struct {
	mu  sync.Mutex
	r   io.Reader
	w   io.Writer
	pty *os.File
	tty *os.File
}

// NewSerial returns a console that prints to stdout and has no input.
func NewSerial() *Serial {
	return &Serial{w: os.Stdout}
}

// NewSerialWith returns a console over arbitrary endpoints. Either
// side may be nil.
func NewSerialWith(r io.Reader, w io.Writer) *Serial {
	return &Serial{r: r, w: w}
}

// NewSerialPty allocates a pseudo-terminal pair and speaks through the
// master side. Attach to TtyPath with any terminal program.
func NewSerialPty(log *logging.Logger) (*Serial, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("serial pty: %w", err)
	}
	if log != nil {
		log.Info("serial console on pty", zap.String("tty", tty.Name()))
	}
	return &Serial{r: ptmx, w: ptmx, pty: ptmx, tty: tty}, nil
}

func (s *Serial) Name() string { return "serial" }
func (s *Serial) Path() string { return "/dev/ttyS0" }

// TtyPath names the attachable terminal, empty without a pty.
func (s *Serial) TtyPath() string {
	if s.tty == nil {
		return ""
	}
	return s.tty.Name()
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	r := s.r
	s.mu.Unlock()
	if r == nil {
		return 0, nil
	}
	n, err := r.Read(p)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return len(p), nil
	}
	return s.w.Write(p)
}

// Close tears the pty pair down if one was opened.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.pty != nil {
		firstErr = s.pty.Close()
		s.pty = nil
		s.r = nil
		s.w = nil
	}
	if s.tty != nil {
		if err := s.tty.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.tty = nil
	}
	return firstErr
}
