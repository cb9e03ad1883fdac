// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ava-labs/paranode/config"
)

// New builds the node logger: colored console output on stderr and, when a
// directory is configured, a rotating plain-text file named after [name].
func New(name string, c config.LogConfig) (logging.Logger, error) {
	level, err := logging.ToLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return newLogger(name, level, os.Stderr, c)
}

func newLogger(name string, level logging.Level, console io.WriteCloser, c config.LogConfig) (logging.Logger, error) {
	cores := []logging.WrappedCore{
		logging.NewWrappedCore(level, console, logging.Colors.ConsoleEncoder()),
	}
	if c.Directory != "" {
		if err := os.MkdirAll(c.Directory, 0o755); err != nil {
			return nil, err
		}
		rw := &lumberjack.Logger{
			Filename:   filepath.Join(c.Directory, name+".log"),
			MaxSize:    c.MaxSize,
			MaxAge:     c.MaxAge,
			MaxBackups: c.MaxFiles,
			Compress:   c.Compress,
		}
		cores = append(cores, logging.NewWrappedCore(level, rw, logging.Plain.FileEncoder()))
	}
	return logging.NewLogger(logging.Plain.WrapPrefix(name), cores...), nil
}
