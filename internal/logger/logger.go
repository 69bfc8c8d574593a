// Package logger configures the process-wide zerolog logger: rotating file
// output, console output, optional Axiom shipping and the HTTP access log.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	// Service is stamped on every event and names the default Axiom dataset.
	Service    string
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Output replaces stdout; tests use a buffer.
	Output io.Writer

	Axiom AxiomOptions
}

// AxiomOptions enables event shipping when APIKey is set.
type AxiomOptions struct {
	APIKey        string
	OrgID         string
	Dataset       string
	MinLevel      string
	FlushInterval time.Duration
}

// Logger is the configured service logger. It also becomes log.Logger.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
	sink *axiomSink
}

// Init builds the logger, installs it as the global zerolog logger and
// returns it so the caller can attach the access log and close it on exit.
func Init(opts Options) (*Logger, error) {
	if opts.Service == "" {
		return nil, errors.New("logger: service name is required")
	}
	l := &Logger{}

	var writers []io.Writer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, l.file)
	}

	stdout := opts.Output
	if stdout == nil {
		stdout = os.Stdout
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, stdout)
	}

	if opts.Axiom.APIKey != "" {
		sink, err := newAxiomSink(opts.Service, opts.Axiom)
		if err != nil {
			// the logger itself is not up yet
			fmt.Fprintf(os.Stderr, "axiom disabled: %v\n", err)
		} else {
			l.sink = sink
			writers = append(writers, sink)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opts.Level, zerolog.InfoLevel)).
		With().Timestamp().Str("service", opts.Service).
		Logger()
	log.Logger = l.Logger
	return l, nil
}

// Close drains the Axiom queue and closes the log file.
func (l *Logger) Close() error {
	var err error
	if l.sink != nil {
		err = l.sink.Close()
	}
	if l.file != nil {
		err = errors.Join(err, l.file.Close())
	}
	return err
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
