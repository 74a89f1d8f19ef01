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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-pkgz/syncs"
	"go.opentelemetry.io/otel/trace"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/arrowrows"
	"github.com/berrytern/ifx/bridge"
	"github.com/berrytern/ifx/native"
	"github.com/berrytern/ifx/pool"
)

type runner struct {
	api      native.API
	opts     options
	params   []ifx.Param
	connOpts []ifx.Option
	logger   *slog.Logger
	out      *printer
}

func (r runner) repeat() int { return max(1, r.opts.Repeat) }

// direct runs the statement on a single connection, one run after the
// other, and streams the last result through Arrow records.
func (r runner) direct(ctx context.Context) error {
	conn, err := ifx.New(r.api, r.connOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.ConnectWithString(ctx, r.opts.DSN); err != nil {
		return err
	}

	stmt, err := conn.Prepare(ctx, r.opts.Args.Query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if err := stmt.BindAll(r.params...); err != nil {
		return err
	}

	for i := range r.repeat() {
		if err := stmt.Execute(ctx); err != nil {
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		if i < r.repeat()-1 {
			if _, err := stmt.FetchAll(); err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
		}
	}

	if r.opts.Describe {
		cols, err := stmt.DescribeColumns()
		if err != nil {
			return err
		}
		r.out.describe(cols)
	}
	rdr, err := arrowrows.Read(memory.DefaultAllocator, stmt, 0)
	if err != nil {
		return err
	}
	defer rdr.Release()
	return r.out.records(rdr)
}

// viaBridge runs the statement on a bridge worker, repeats concurrently.
// The bridge serializes them on its single connection.
func (r runner) viaBridge(ctx context.Context) error {
	b, err := bridge.New(r.opts.Bridge, bridge.WithLogger(r.logger))
	if err != nil {
		return err
	}
	defer b.Close()

	conn, err := bridge.Open(ctx, b, r.api, r.opts.DSN, r.connOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()
	stmt, err := conn.Prepare(ctx, r.opts.Args.Query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var first firstRows
	err = r.each(ctx, func(ctx context.Context) error {
		return first.keep(stmt.Query(ctx, r.params...))
	})
	if err != nil {
		return err
	}

	cols, err := stmt.DescribeColumns(ctx)
	if err != nil {
		return err
	}
	if r.opts.Describe {
		r.out.describe(cols)
	}
	return r.out.rows(arrowrows.Schema(cols), first.rows)
}

// viaPool spreads the runs over a pool.
func (r runner) viaPool(ctx context.Context, tracer trace.Tracer) error {
	cfg, err := pool.ConfigFromOptions(r.opts.PoolOptions)
	if err != nil {
		return err
	}
	cfg.Size = r.opts.Pool
	cfg.ConnectionString = r.opts.DSN
	cfg.ConnOptions = append(r.connOpts, cfg.ConnOptions...)
	cfg.Logger = r.logger
	cfg.Tracer = tracer

	p, err := pool.New(ctx, r.api, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	var first firstRows
	err = r.each(ctx, func(ctx context.Context) error {
		return first.keep(p.Query(ctx, r.opts.Args.Query, r.params...))
	})
	for _, st := range p.Stats() {
		r.logger.Debug("slot stats", slog.Int("slot", st.Slot), slog.String("state", st.State.String()),
			slog.Uint64("served", st.Served), slog.Uint64("failed", st.Failed))
	}
	if err != nil {
		return err
	}
	if r.opts.Describe {
		r.logger.Warn("--describe is not available through the pool")
	}
	rows := first.rows
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	names := make([]string, width)
	for i := range names {
		names[i] = fmt.Sprintf("col%d", i+1)
	}
	return r.out.rows(arrowrows.NameSchema(names...), rows)
}

// firstRows holds the rows of the first run that succeeded.
type firstRows struct {
	once sync.Once
	rows []ifx.Row
}

func (f *firstRows) keep(rows []ifx.Row, err error) error {
	if err != nil {
		return err
	}
	f.once.Do(func() { f.rows = rows })
	return nil
}

// each calls fn repeat times with at most opts.Concurrency calls in
// flight.
func (r runner) each(ctx context.Context, fn func(context.Context) error) error {
	wg := syncs.NewErrSizedGroup(max(1, r.opts.Concurrency), syncs.Context(ctx), syncs.Preemptive)
	for range r.repeat() {
		wg.Go(func() error { return fn(ctx) })
	}
	return wg.Wait()
}
