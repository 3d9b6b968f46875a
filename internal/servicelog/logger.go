// Package servicelog wraps zap behind a small attribute-accumulating
// facade so the rest of the tree never imports zap directly.
package servicelog

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error {
	return nil
}

// Attrib is one accumulated key=value pair.
type Attrib func(sb *strings.Builder)

func printer(name string, val interface{}) Attrib {
	return func(sb *strings.Builder) {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteString("=")
		fmt.Fprintf(sb, "%v", val)
	}
}

func String(name, value string) Attrib        { return printer(name, value) }
func Error(err error) Attrib                  { return printer("error", err) }
func Bool(name string, value bool) Attrib     { return printer(name, value) }
func Any(name string, value interface{}) Attrib { return printer(name, value) }
func Int(name string, value int) Attrib       { return printer(name, value) }
func Uint32(name string, value uint32) Attrib { return printer(name, value) }
func Int64(name string, value int64) Attrib   { return printer(name, value) }
func Time(name string, value time.Time) Attrib           { return printer(name, value) }
func Duration(name string, value time.Duration) Attrib   { return printer(name, value) }

// Logger is the facade the rest of the tree depends on.
type Logger interface {
	With(attrs ...Attrib) Logger
	Info(msg string, attrs ...Attrib)
	Error(msg string, attrs ...Attrib)
	Warn(msg string, attrs ...Attrib)
	Debug(msg string, attrs ...Attrib)
	Fatal(msg string, attrs ...Attrib)
}

type logger struct {
	zap   *zap.Logger
	svc   service.Logger // optional, set when hosted under a service supervisor
	debug bool
	attrs []Attrib
}

// Options controls log destination and verbosity.
type Options struct {
	Debug      bool
	LogFile    string // rotated through lumberjack; empty disables rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Service    service.Logger // optional, mirrors Warn/Error/Fatal to the OS service host
}

// New builds a Logger. With Options.LogFile set, output is routed through
// a lumberjack-backed rotating sink registered under the "lumberjack://" scheme.
func New(opts Options) Logger {
	var config zap.Config
	if opts.Debug {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	if opts.LogFile != "" {
		zap.RegisterSink("lumberjack", func(u *url.URL) (zap.Sink, error) {
			return lumberjackSink{
				Logger: &lumberjack.Logger{
					Filename:   u.Path,
					MaxSize:    orDefault(opts.MaxSizeMB, 100),
					MaxBackups: orDefault(opts.MaxBackups, 5),
					MaxAge:     orDefault(opts.MaxAgeDays, 28),
				},
			}, nil
		})
		config.OutputPaths = []string{"lumberjack://" + opts.LogFile}
	}
	built, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &logger{zap: built, svc: opts.Service, debug: opts.Debug}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *logger) render(msg string, attrs ...Attrib) string {
	var sb strings.Builder
	sb.WriteString(msg)
	if l != nil {
		for _, a := range l.attrs {
			a(&sb)
		}
	}
	for _, a := range attrs {
		a(&sb)
	}
	return sb.String()
}

func (l *logger) Info(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l == nil || l.zap == nil {
		log.Println(message)
		return
	}
	l.zap.Info(message)
}

func (l *logger) Error(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l == nil || l.zap == nil {
		log.Println(message)
		return
	}
	l.zap.Error(message)
	if l.svc != nil {
		l.svc.Error(message)
	}
}

func (l *logger) Fatal(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l == nil || l.zap == nil {
		log.Fatal(message)
		return
	}
	if l.svc != nil {
		l.svc.Error(message)
	}
	l.zap.Fatal(message)
}

func (l *logger) Warn(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l == nil || l.zap == nil {
		log.Println(message)
		return
	}
	l.zap.Warn(message)
	if l.svc != nil {
		l.svc.Warning(message)
	}
}

func (l *logger) Debug(msg string, attrs ...Attrib) {
	if l == nil || !l.debug {
		return
	}
	message := l.render(msg, attrs...)
	l.zap.Debug(message)
}

func (l *logger) With(attrs ...Attrib) Logger {
	newLogger := &logger{}
	if l != nil {
		newLogger.zap = l.zap
		newLogger.svc = l.svc
		newLogger.debug = l.debug
		if len(l.attrs) > 0 {
			newLogger.attrs = make([]Attrib, 0, len(l.attrs)+len(attrs))
			newLogger.attrs = append(newLogger.attrs, l.attrs...)
		}
	}
	newLogger.attrs = append(newLogger.attrs, attrs...)
	return newLogger
}
