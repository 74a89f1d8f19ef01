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

package pool

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/berrytern/ifx"
)

// Option keys accepted by ConfigFromOptions.
const (
	OptionKeySize               = "ifx.pool.size"
	OptionKeyConnectionString   = "ifx.pool.connection_string"
	OptionKeyMailboxCapacity    = "ifx.pool.mailbox_capacity"
	OptionKeyStatementCacheSize = "ifx.pool.statement_cache_size"
	OptionKeyQueryTimeout       = "ifx.pool.query_timeout_seconds"
	OptionKeyFetchBufferSize    = "ifx.fetch.buffer_size"
	OptionKeyMaxColumns         = "ifx.fetch.max_columns"
)

const (
	DefaultSize            = 4
	DefaultMailboxCapacity = 1
)

// Config describes a pool.
type Config struct {
	// Size is the number of connections, each owned by one slot.
	Size int
	// ConnectionString is handed to SQLDriverConnect for every slot.
	ConnectionString string
	// MailboxCapacity bounds the requests queued on one slot.
	MailboxCapacity int
	// StatementCacheSize is the number of prepared statements each slot
	// keeps, keyed by SQL text. 0 disables the cache.
	StatementCacheSize int
	// QueryTimeout bounds how long Query waits for a reply when the
	// caller's context has no deadline. 0 waits indefinitely.
	QueryTimeout time.Duration

	ConnOptions []ifx.Option
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

func invalid(format string, args ...any) error {
	return &ifx.Error{Kind: ifx.KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func (c *Config) validate() error {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.MailboxCapacity == 0 {
		c.MailboxCapacity = DefaultMailboxCapacity
	}
	switch {
	case c.Size < 0:
		return invalid("pool size must be positive, got %d", c.Size)
	case c.MailboxCapacity < 0:
		return invalid("mailbox capacity must be positive, got %d", c.MailboxCapacity)
	case c.StatementCacheSize < 0:
		return invalid("statement cache size must not be negative, got %d", c.StatementCacheSize)
	case c.QueryTimeout < 0:
		return invalid("query timeout must not be negative, got %s", c.QueryTimeout)
	}
	return nil
}

// ConfigFromOptions builds a Config from string options. Unknown keys
// are rejected.
func ConfigFromOptions(opts map[string]string) (Config, error) {
	var cfg Config
	for key, val := range opts {
		switch key {
		case OptionKeyConnectionString:
			cfg.ConnectionString = val
		case OptionKeySize, OptionKeyMailboxCapacity, OptionKeyStatementCacheSize,
			OptionKeyFetchBufferSize, OptionKeyMaxColumns:
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, invalid("invalid value for pool option '%s': '%s'", key, val)
			}
			switch key {
			case OptionKeySize:
				cfg.Size = n
			case OptionKeyMailboxCapacity:
				cfg.MailboxCapacity = n
			case OptionKeyStatementCacheSize:
				cfg.StatementCacheSize = n
			case OptionKeyFetchBufferSize:
				cfg.ConnOptions = append(cfg.ConnOptions, ifx.WithFetchBufferSize(n))
			case OptionKeyMaxColumns:
				cfg.ConnOptions = append(cfg.ConnOptions, ifx.WithMaxColumns(n))
			}
		case OptionKeyQueryTimeout:
			secs, err := strconv.ParseFloat(val, 64)
			if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
				return Config{}, invalid("invalid timeout option value %s = %s: timeouts must be non-negative and finite", key, val)
			}
			cfg.QueryTimeout = time.Duration(secs * float64(time.Second))
		default:
			return Config{}, invalid("unknown pool option '%s'", key)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
