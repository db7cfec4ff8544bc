// Package logger provides the leveled process logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

const (
	module     = "usersvc"
	timeFormat = "2006/01/02 15:04:05"
)

var logger = logging.MustGetLogger(module)

func init() {
	InitLogger(logging.INFO)
}

// InitLogger routes log output to stderr at the given level.
func InitLogger(level logging.Level) {
	SetOutput(os.Stderr, level)
}

// SetOutput routes log output to w at the given level.
func SetOutput(w io.Writer, level logging.Level) {
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(
		`%{time:`+timeFormat+`} %{level} - %{message}`,
	))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, module)
	logger.SetBackend(leveled)
}

// ParseLevel maps a level name such as "debug" or "warning" to a logging level.
// Unknown names fall back to INFO.
func ParseLevel(name string) logging.Level {
	if name == "" {
		return logging.INFO
	}
	level, err := logging.LogLevel(strings.ToUpper(name))
	if err != nil {
		return logging.INFO
	}
	return level
}

func Debug(args ...any) {
	logger.Debug(args...)
}

func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

func Info(args ...any) {
	logger.Info(args...)
}

func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

func Warning(args ...any) {
	logger.Warning(args...)
}

func Warningf(format string, args ...any) {
	logger.Warningf(format, args...)
}

func Error(args ...any) {
	logger.Error(args...)
}

func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}
