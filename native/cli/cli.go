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

// Package cli binds native.API to the Informix CLI library (libifcli)
// through cgo.
//
// The binding is only compiled with cgo enabled and the ifcli build tag:
//
//	CGO_CFLAGS="-I$INFORMIXDIR/incl/cli" CGO_LDFLAGS="-L$INFORMIXDIR/lib/cli" \
//	    go build -tags ifcli ./...
//
// Without it Open reports ErrUnavailable.
package cli

import (
	"errors"
	"log/slog"

	"github.com/berrytern/ifx/native"
)

// ErrUnavailable is returned by Open in builds without the native
// library.
var ErrUnavailable = errors.New("cli: built without the ifcli tag or without cgo")

// Option configures the binding.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger for binding-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Open returns the native.API of the linked CLI library.
func Open(opts ...Option) (native.API, error) {
	cfg := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return open(cfg)
}
