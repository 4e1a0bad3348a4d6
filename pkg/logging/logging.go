package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rexliu/credrelay/pkg/config"
)

// Logger wraps the standard log.Logger with a component prefix.
type Logger struct {
	*log.Logger
}

// New returns a logger writing to stdout.
func New(prefix string) *Logger {
	return NewTo(os.Stdout, prefix)
}

// NewTo returns a logger writing to w. The native messaging bridge logs to
// stderr because stdout carries frames.
func NewTo(w io.Writer, prefix string) *Logger {
	return &Logger{Logger: log.New(w, prefix+" ", log.LstdFlags|log.Lmsgprefix)}
}

// Configure applies logging settings from config.
func (l *Logger) Configure(cfg config.LoggingConfig) error {
	if l == nil || l.Logger == nil {
		return nil
	}
	if cfg.Level != "" {
		l.SetPrefix(strings.ToUpper(cfg.Level) + " " + l.Prefix())
	}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
			return err
		}
		writer, err := newRollingFile(cfg.FilePath, cfg.FileMaxSize)
		if err != nil {
			return err
		}
		l.SetOutput(io.MultiWriter(l.Writer(), writer))
	}
	return nil
}

// rollingFile keeps one previous generation at path+".1".
type rollingFile struct {
	mu   sync.Mutex
	path string
	max  int64
	file *os.File
}

func newRollingFile(path string, maxMB int) (*rollingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &rollingFile{path: path, max: int64(maxMB) * 1024 * 1024, file: f}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size()+int64(len(p)) > r.max {
			if err := r.rotate(); err != nil {
				return 0, err
			}
		}
	}
	return r.file.Write(p)
}

func (r *rollingFile) rotate() error {
	r.file.Close()
	if err := os.Rename(r.path, r.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}
