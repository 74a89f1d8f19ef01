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

package ifx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultFetchBufferSize is the size of the buffer handed to
	// SQLGetData. Longer values are read in several pieces.
	DefaultFetchBufferSize = 2048
	// DefaultMaxColumns bounds the column walk of Fetch when the column
	// count of the result set is unknown.
	DefaultMaxColumns = 1000

	instrumentationName = "github.com/berrytern/ifx"
	dbSystem            = "informix"
)

type options struct {
	logger          *slog.Logger
	tracer          trace.Tracer
	fetchBufferSize int
	maxColumns      int
}

// Option configures a Conn.
type Option func(*options)

// WithLogger sets the logger that receives teardown failures and other
// events that cannot be returned to a caller. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer for connect, prepare, execute and query
// spans. The default is the global tracer provider's.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithFetchBufferSize sets the SQLGetData buffer size, at least 2.
func WithFetchBufferSize(n int) Option {
	return func(o *options) { o.fetchBufferSize = n }
}

// WithMaxColumns sets the column bound used when the column count is
// unknown.
func WithMaxColumns(n int) Option {
	return func(o *options) { o.maxColumns = n }
}

func nilLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		fetchBufferSize: DefaultFetchBufferSize,
		maxColumns:      DefaultMaxColumns,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = nilLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.fetchBufferSize < 2 {
		return nil, errorf(KindInvalidArgument, "fetch buffer size must be at least 2, got %d", o.fetchBufferSize)
	}
	if o.maxColumns < 1 || o.maxColumns > 0xFFFF {
		return nil, errorf(KindInvalidArgument, "max columns must be in [1, 65535], got %d", o.maxColumns)
	}
	return o, nil
}

func (o *options) startSpan(ctx context.Context, name, statement string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", dbSystem)}
	if statement != "" {
		attrs = append(attrs, attribute.String("db.statement", statement))
	}
	return o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func ctxErr(ctx context.Context, kind Kind) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(kind, err, "not started")
	}
	return nil
}
