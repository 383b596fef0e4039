/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/inconshreveable/log15"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Config selects the log level and outputs.
type Config struct {
	// Level is one of debug, info, warn, error, crit.
	Level string `yaml:"level"`
	// Format is "terminal", "logfmt" or "json". Terminal output is colored
	// when stderr is a tty.
	Format string `yaml:"format"`
	// ErrorFile, when set, additionally receives error and crit records as JSON.
	ErrorFile string `yaml:"errorFile"`
}

var root = newRoot()

func newRoot() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.StderrHandler)
	return l
}

// New returns a log15 logger that writes through the shared root handler.
func New(ctx ...interface{}) log15.Logger {
	return root.New(ctx...)
}

// Init installs the handler described by cfg on the root logger. Loggers
// created before Init pick up the change.
func Init(cfg Config) error {
	h, err := NewHandler(cfg, os.Stderr)
	if err != nil {
		return err
	}
	root.SetHandler(h)
	return nil
}

// NewHandler builds the handler for cfg writing to w.
func NewHandler(cfg Config, w io.Writer) (log15.Handler, error) {
	lvl := log15.LvlInfo
	if cfg.Level != "" {
		parsed, err := log15.LvlFromString(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level [%s]", cfg.Level)
		}
		lvl = parsed
	}

	var stream log15.Handler
	switch cfg.Format {
	case "", "terminal":
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			stream = log15.StreamHandler(colorable.NewColorable(f), log15.TerminalFormat())
		} else {
			stream = log15.StreamHandler(colorable.NewNonColorable(w), log15.TerminalFormat())
		}
	case "logfmt":
		stream = log15.StreamHandler(w, log15.LogfmtFormat())
	case "json":
		stream = log15.StreamHandler(w, log15.JsonFormat())
	default:
		return nil, errors.Errorf("unknown log format [%s]", cfg.Format)
	}

	handlers := []log15.Handler{log15.LvlFilterHandler(lvl, stream)}
	if cfg.ErrorFile != "" {
		if _, err := CreateDirIfMissing(filepath.Dir(cfg.ErrorFile)); err != nil {
			return nil, err
		}
		fh, err := log15.FileHandler(cfg.ErrorFile, log15.JsonFormat())
		if err != nil {
			return nil, errors.Wrapf(err, "error opening log file [%s]", cfg.ErrorFile)
		}
		handlers = append(handlers, log15.LvlFilterHandler(log15.LvlError, fh))
	}
	return log15.SyncHandler(log15.MultiHandler(handlers...)), nil
}

// CreateDirIfMissing creates a dir for dirPath if not already exists. If the dir is empty it returns true
func CreateDirIfMissing(dirPath string) (bool, error) {
	// if dirPath does not end with a path separator, it leaves out the last segment while creating directories
	if !strings.HasSuffix(dirPath, "/") {
		dirPath = dirPath + "/"
	}
	err := os.MkdirAll(filepath.Dir(dirPath), 0755)
	if err != nil {
		return false, errors.Wrapf(err, "error creating dir [%s]", dirPath)
	}
	return DirEmpty(dirPath)
}

// DirEmpty returns true if the dir at dirPath is empty
func DirEmpty(dirPath string) (bool, error) {
	f, err := os.Open(dirPath)
	if err != nil {
		return false, errors.Wrapf(err, "error opening dir [%s]", dirPath)
	}
	defer f.Close()

	_, err = f.Readdir(1)
	if err == io.EOF {
		return true, nil
	}
	err = errors.Wrapf(err, "error checking if dir [%s] is empty", dirPath)
	return false, err
}
