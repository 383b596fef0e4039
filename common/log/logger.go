/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"fmt"
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/zhigui-projects/go-attest/api"
)

var (
	defaultLogger api.Logger
	loggerMut     sync.Mutex
)

// SetLogger replaces the process wide logger returned by GetLogger.
func SetLogger(l api.Logger) {
	loggerMut.Lock()
	defer loggerMut.Unlock()
	defaultLogger = l
}

// GetLogger returns the process wide logger, or a child of it carrying ctx.
func GetLogger(ctx ...interface{}) api.Logger {
	loggerMut.Lock()
	if defaultLogger == nil {
		defaultLogger = &DefaultLogger{New("logger", "attest")}
	}
	l := defaultLogger
	loggerMut.Unlock()

	if len(ctx) == 0 {
		return l
	}
	return l.New(ctx...)
}

// DefaultLogger is a default implementation of the Logger interface.
type DefaultLogger struct {
	log15.Logger
}

func (l *DefaultLogger) New(ctx ...interface{}) api.Logger {
	return &DefaultLogger{l.Logger.New(ctx...)}
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if msg, ctx, ok := split(v); ok {
		l.Logger.Debug(msg, ctx...)
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.Logger.Debug(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	if msg, ctx, ok := split(v); ok {
		l.Logger.Error(msg, ctx...)
	}
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Info(v ...interface{}) {
	if msg, ctx, ok := split(v); ok {
		l.Logger.Info(msg, ctx...)
	}
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Logger.Info(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Warning(v ...interface{}) {
	if msg, ctx, ok := split(v); ok {
		l.Logger.Warn(msg, ctx...)
	}
}

func (l *DefaultLogger) Warningf(format string, v ...interface{}) {
	l.Logger.Warn(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	if msg, ctx, ok := split(v); ok {
		l.Logger.Crit(msg, ctx...)
	}
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.Logger.Crit(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Panic(v ...interface{}) {
	panic(fmt.Sprint(v...))
}

func (l *DefaultLogger) Panicf(format string, v ...interface{}) {
	panic(fmt.Sprintf(format, v...))
}

// split treats the first value as the message and the rest as key/value
// context. A non-string first value is formatted into the message.
func split(v []interface{}) (string, []interface{}, bool) {
	if len(v) == 0 {
		return "", nil, false
	}
	msg, ok := v[0].(string)
	if !ok {
		msg = fmt.Sprint(v[0])
	}
	return msg, v[1:], true
}
