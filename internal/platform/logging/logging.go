package logging

import (
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/logger"
)

// New returns a logger writing to stdout, or to path when it is set, that
// drops messages below level.
func New(path string, level string) logger.Logger {
	var base logger.Logger
	if strings.TrimSpace(path) != "" {
		base = logger.NewFileLogger(path)
	} else {
		base = logger.NewDefaultLogger()
	}
	return &leveled{base: base, level: ParseLevel(level)}
}

// ParseLevel maps a config string to a wails log level, defaulting to INFO.
func ParseLevel(value string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return logger.TRACE
	case "debug":
		return logger.DEBUG
	case "warn", "warning":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

type leveled struct {
	base  logger.Logger
	level logger.LogLevel
}

func (l *leveled) Print(message string) { l.base.Print(message) }

func (l *leveled) Trace(message string) {
	if l.level <= logger.TRACE {
		l.base.Trace(message)
	}
}

func (l *leveled) Debug(message string) {
	if l.level <= logger.DEBUG {
		l.base.Debug(message)
	}
}

func (l *leveled) Info(message string) {
	if l.level <= logger.INFO {
		l.base.Info(message)
	}
}

func (l *leveled) Warning(message string) {
	if l.level <= logger.WARNING {
		l.base.Warning(message)
	}
}

func (l *leveled) Error(message string) {
	if l.level <= logger.ERROR {
		l.base.Error(message)
	}
}

func (l *leveled) Fatal(message string) { l.base.Fatal(message) }

// Nop discards everything.
func Nop() logger.Logger {
	return nop{}
}

type nop struct{}

func (nop) Print(string)   {}
func (nop) Trace(string)   {}
func (nop) Debug(string)   {}
func (nop) Info(string)    {}
func (nop) Warning(string) {}
func (nop) Error(string)   {}
func (nop) Fatal(string)   {}

// Prefixed tags every message with a bracketed component name.
func Prefixed(base logger.Logger, component string) logger.Logger {
	if base == nil {
		base = Nop()
	}
	return &prefixed{base: base, prefix: fmt.Sprintf("[%s] ", component)}
}

type prefixed struct {
	base   logger.Logger
	prefix string
}

func (p *prefixed) Print(message string)   { p.base.Print(p.prefix + message) }
func (p *prefixed) Trace(message string)   { p.base.Trace(p.prefix + message) }
func (p *prefixed) Debug(message string)   { p.base.Debug(p.prefix + message) }
func (p *prefixed) Info(message string)    { p.base.Info(p.prefix + message) }
func (p *prefixed) Warning(message string) { p.base.Warning(p.prefix + message) }
func (p *prefixed) Error(message string)   { p.base.Error(p.prefix + message) }
func (p *prefixed) Fatal(message string)   { p.base.Fatal(p.prefix + message) }
