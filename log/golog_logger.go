package log

import (
	"io"

	"github.com/kataras/golog"
)

var gologLevels = map[LogLevel]golog.Level{
	LogLevelDebug: golog.DebugLevel,
	LogLevelInfo:  golog.InfoLevel,
	LogLevelWarn:  golog.WarnLevel,
	LogLevelError: golog.ErrorLevel,
	LogLevelNone:  golog.DisableLevel,
}

// GologLogger is the production Logger, backed by kataras/golog. Level
// filtering is left to golog.
type GologLogger struct {
	g     *golog.Logger
	level LogLevel
}

var _ Logger = (*GologLogger)(nil)

// WrapGolog adapts g, resetting its level to level.
func WrapGolog(g *golog.Logger, level LogLevel) *GologLogger {
	l := &GologLogger{g: g}
	l.SetLevel(level)
	return l
}

// NewGolog returns a golog logger writing to out with the tenantflow prefix.
func NewGolog(out io.Writer, level LogLevel) *GologLogger {
	g := golog.New()
	g.SetOutput(out)
	g.SetPrefix(Prefix)
	return WrapGolog(g, level)
}

func (l *GologLogger) Debug(format string, v ...any) { l.g.Debugf(format, v...) }
func (l *GologLogger) Info(format string, v ...any)  { l.g.Infof(format, v...) }
func (l *GologLogger) Warn(format string, v ...any)  { l.g.Warnf(format, v...) }
func (l *GologLogger) Error(format string, v ...any) { l.g.Errorf(format, v...) }

// SetLevel changes the level of the underlying golog logger. Unknown levels
// fall back to info.
func (l *GologLogger) SetLevel(level LogLevel) {
	gl, ok := gologLevels[level]
	if !ok {
		level, gl = LogLevelInfo, golog.InfoLevel
	}
	l.level = level
	l.g.Level = gl
}

// GetLevel returns the current level.
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
