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

package bridge

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

// Conn runs the methods of an ifx.Conn on bridge workers, one native call
// at a time. Statements and cursors created through it share that limit.
type Conn struct {
	b    *Bridge
	conn *ifx.Conn
	sem  *semaphore.Weighted
}

// Stmt runs the methods of an ifx.Stmt on bridge workers.
type Stmt struct {
	c    *Conn
	stmt *ifx.Stmt
}

// Open creates and connects an ifx.Conn on a worker.
func Open(ctx context.Context, b *Bridge, api native.API, dsn string, opts ...ifx.Option) (*Conn, error) {
	conn, err := Call(ctx, b, func() (*ifx.Conn, error) {
		conn, err := ifx.New(api, opts...)
		if err != nil {
			return nil, err
		}
		if err := conn.ConnectWithString(ctx, dsn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return Wrap(b, conn), nil
}

// Wrap puts an existing connection behind b. The caller must not use conn
// directly afterwards.
func Wrap(b *Bridge, conn *ifx.Conn) *Conn {
	return &Conn{b: b, conn: conn, sem: newSem()}
}

// exclusive runs fn on a worker while holding the connection's slot. The
// slot is given back by the worker when fn returns, not when the caller
// stops waiting.
func exclusive[T any](ctx context.Context, c *Conn, fn func() (T, error)) (T, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, fmt.Errorf("bridge: connection busy: %w", err)
	}
	return run(ctx, c.b, fn, func() { c.sem.Release(1) })
}

// teardown runs a release on a worker, or on the calling goroutine once
// the bridge is closed, so handles are freed either way.
func (c *Conn) teardown(release func() error) error {
	_, err := exclusive(context.Background(), c, func() (struct{}, error) {
		return struct{}{}, release()
	})
	if !errors.Is(err, ErrClosed) {
		return err
	}
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	return release()
}

// Prepare prepares sql on a new statement.
func (c *Conn) Prepare(ctx context.Context, sql string) (*Stmt, error) {
	stmt, err := exclusive(ctx, c, func() (*ifx.Stmt, error) { return c.conn.Prepare(ctx, sql) })
	if err != nil {
		return nil, err
	}
	return &Stmt{c: c, stmt: stmt}, nil
}

// Execute runs sql directly and returns the statement holding its result.
func (c *Conn) Execute(ctx context.Context, sql string) (*Stmt, error) {
	stmt, err := exclusive(ctx, c, func() (*ifx.Stmt, error) { return c.conn.Execute(ctx, sql) })
	if err != nil {
		return nil, err
	}
	return &Stmt{c: c, stmt: stmt}, nil
}

// QueryWithParameters is ifx.Conn.QueryWithParameters on a worker: nil
// rows mean an empty result.
func (c *Conn) QueryWithParameters(ctx context.Context, sql string, params ...ifx.Param) ([]ifx.Row, error) {
	return exclusive(ctx, c, func() ([]ifx.Row, error) {
		return c.conn.QueryWithParameters(ctx, sql, params...)
	})
}

// Cursor returns a cursor over c.
func (c *Conn) Cursor() *Cursor {
	return &Cursor{c: c, cur: c.conn.Cursor()}
}

// Close closes the connection and the statements still open on it. It
// waits for a call in flight on the connection to finish first. After the
// bridge is closed the connection is closed on the calling goroutine.
func (c *Conn) Close() error {
	return c.teardown(c.conn.Close)
}

// Bind binds p to the 1-based ordinal.
func (s *Stmt) Bind(ctx context.Context, ordinal int, p ifx.Param) error {
	_, err := exclusive(ctx, s.c, func() (struct{}, error) { return struct{}{}, s.stmt.Bind(ordinal, p) })
	return err
}

// Execute executes the prepared statement with its current bindings.
func (s *Stmt) Execute(ctx context.Context) error {
	_, err := exclusive(ctx, s.c, func() (struct{}, error) { return struct{}{}, s.stmt.Execute(ctx) })
	return err
}

// Fetch reads the next row; ok is false at the end of the result set.
func (s *Stmt) Fetch(ctx context.Context) (ifx.Row, bool, error) {
	type fetched struct {
		row ifx.Row
		ok  bool
	}
	f, err := exclusive(ctx, s.c, func() (fetched, error) {
		row, ok, err := s.stmt.Fetch()
		return fetched{row, ok}, err
	})
	return f.row, f.ok, err
}

// FetchAll reads the remaining rows.
func (s *Stmt) FetchAll(ctx context.Context) ([]ifx.Row, error) {
	return exclusive(ctx, s.c, func() ([]ifx.Row, error) { return s.stmt.FetchAll() })
}

// DescribeColumns describes the columns of the current result set.
func (s *Stmt) DescribeColumns(ctx context.Context) ([]ifx.ColumnMetadata, error) {
	return exclusive(ctx, s.c, func() ([]ifx.ColumnMetadata, error) { return s.stmt.DescribeColumns() })
}

// Query resets the statement, binds params by position, executes it and
// reads every row, all in one worker call.
func (s *Stmt) Query(ctx context.Context, params ...ifx.Param) ([]ifx.Row, error) {
	return exclusive(ctx, s.c, func() ([]ifx.Row, error) { return s.stmt.Query(ctx, params...) })
}

// Close frees the statement, on the calling goroutine once the bridge is
// closed.
func (s *Stmt) Close() error {
	return s.c.teardown(s.stmt.Close)
}

// Cursor runs the methods of an ifx.Cursor on bridge workers.
type Cursor struct {
	c   *Conn
	cur *ifx.Cursor
}

// Execute runs sql directly, replacing the cursor's previous statement.
func (cu *Cursor) Execute(ctx context.Context, sql string) error {
	_, err := exclusive(ctx, cu.c, func() (struct{}, error) { return struct{}{}, cu.cur.Execute(ctx, sql) })
	return err
}

// ExecuteWithParams prepares sql, binds params by position and executes.
func (cu *Cursor) ExecuteWithParams(ctx context.Context, sql string, params ...ifx.Param) error {
	_, err := exclusive(ctx, cu.c, func() (struct{}, error) {
		return struct{}{}, cu.cur.ExecuteWithParams(ctx, sql, params...)
	})
	return err
}

// FetchOne reads the next row of the current statement.
func (cu *Cursor) FetchOne(ctx context.Context) (ifx.Row, bool, error) {
	type fetched struct {
		row ifx.Row
		ok  bool
	}
	f, err := exclusive(ctx, cu.c, func() (fetched, error) {
		row, ok, err := cu.cur.FetchOne()
		return fetched{row, ok}, err
	})
	return f.row, f.ok, err
}

// FetchAll reads the remaining rows of the current statement.
func (cu *Cursor) FetchAll(ctx context.Context) ([]ifx.Row, error) {
	return exclusive(ctx, cu.c, func() ([]ifx.Row, error) { return cu.cur.FetchAll() })
}

// Description describes the columns of the current statement.
func (cu *Cursor) Description(ctx context.Context) ([]ifx.ColumnMetadata, error) {
	return exclusive(ctx, cu.c, func() ([]ifx.ColumnMetadata, error) { return cu.cur.Description() })
}

// Close closes the current statement, if any.
func (cu *Cursor) Close() error {
	return cu.c.teardown(cu.cur.Close)
}

func newSem() *semaphore.Weighted { return semaphore.NewWeighted(1) }
