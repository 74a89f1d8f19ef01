// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package logsink writes JSON lines to a folder of size-capped files,
// keeping at most a fixed number of them.
package logsink

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPrefix    = "ifx"
	DefaultMaxSizeKB = int64(1024)
	DefaultMaxFiles  = 10
	fileExt          = ".jsonl"
)

type config struct {
	dir       string
	prefix    string
	maxSizeKB int64
	maxFiles  int
}

type Option func(*config)

// WithDir sets the folder the files are written to. The default is
// <user cache dir>/ifx/logs.
func WithDir(dir string) Option {
	return func(c *config) { c.dir = dir }
}

// WithPrefix sets the file name prefix.
func WithPrefix(prefix string) Option {
	return func(c *config) { c.prefix = prefix }
}

// WithMaxSizeKB sets the size after which a new file is started.
func WithMaxSizeKB(kb int64) Option {
	return func(c *config) { c.maxSizeKB = kb }
}

// WithMaxFiles sets how many files are kept.
func WithMaxFiles(n int) Option {
	return func(c *config) { c.maxFiles = n }
}

func newConfig(options ...Option) (cfg config, err error) {
	cfg = config{
		prefix:    DefaultPrefix,
		maxSizeKB: DefaultMaxSizeKB,
		maxFiles:  DefaultMaxFiles,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.dir) == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return cfg, err
		}
		cfg.dir = filepath.Join(cacheDir, "ifx", "logs")
	}
	if strings.TrimSpace(cfg.prefix) == "" {
		cfg.prefix = DefaultPrefix
	}
	cfg.maxSizeKB = max(1, cfg.maxSizeKB)
	cfg.maxFiles = max(1, cfg.maxFiles)

	if err = os.MkdirAll(cfg.dir, 0o755); err != nil {
		return cfg, err
	}
	// fail now rather than on the first log record
	tmp, err := os.CreateTemp(cfg.dir, cfg.prefix)
	if err != nil {
		return cfg, err
	}
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())
	return cfg, nil
}

// Writer is an io.WriteCloser over the rotating files. It is safe for
// concurrent use; each Write lands in a single file.
type Writer struct {
	cfg config

	mu      sync.Mutex
	current *os.File
}

// New creates the folder if needed and checks that it is writable. No
// file is opened before the first Write.
func New(options ...Option) (*Writer, error) {
	cfg, err := newConfig(options...)
	if err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg}, nil
}

// Dir is the folder the files are written to.
func (w *Writer) Dir() string { return w.cfg.dir }

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(); err != nil {
		return 0, err
	}
	if err := w.open(); err != nil {
		return 0, err
	}
	return w.current.Write(p)
}

// Close closes the current file. A later Write opens a file again.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

// Files lists the files of this writer, oldest first.
func (w *Writer) Files() ([]string, error) {
	return filepath.Glob(filepath.Join(w.cfg.dir, w.cfg.prefix+"-*"+fileExt))
}

func (w *Writer) rotate() error {
	if w.current == nil {
		return nil
	}
	info, err := w.current.Stat()
	if err != nil {
		return err
	}
	if info.Size() < w.cfg.maxSizeKB*1024 {
		return nil
	}
	if err := w.current.Close(); err != nil {
		return err
	}
	w.current = nil
	return nil
}

func (w *Writer) open() error {
	if w.current != nil {
		return nil
	}
	files, err := w.Files()
	if err != nil {
		return err
	}
	// continue the newest file if it has room
	if n := len(files); n > 0 {
		last := files[n-1]
		if info, err := os.Stat(last); err == nil && info.Size() < w.cfg.maxSizeKB*1024 {
			if f, err := os.OpenFile(last, os.O_APPEND|os.O_WRONLY, 0o666); err == nil {
				w.current = f
				return nil
			}
		}
	}

	name := w.cfg.prefix + "-" + time.Now().UTC().Format("2006-01-02-15-04-05.000000000") + fileExt
	f, err := os.OpenFile(filepath.Join(w.cfg.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	w.current = f
	return w.prune(append(files, f.Name()))
}

// prune removes the oldest files beyond maxFiles.
func (w *Writer) prune(files []string) error {
	var errs []error
	for len(files) > w.cfg.maxFiles {
		if err := os.Remove(files[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		files = files[1:]
	}
	return errors.Join(errs...)
}
