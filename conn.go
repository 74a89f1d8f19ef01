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

// Package ifx is a handle-safe client for the Informix CLI call-level
// interface.
//
// A Conn owns an environment handle and a connection handle; every Stmt
// it creates owns a statement handle under them. Handles are released
// exactly once, statements before their connection and the connection
// before its environment, no matter in which order the Go values are
// closed. Failures during release are logged, not returned.
//
// Conn and Stmt are not safe for concurrent use. The packages pool and
// bridge build concurrent access on top of them.
package ifx

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/berrytern/ifx/native"
)

// resources is everything a Conn releases.
type resources struct {
	logger *slog.Logger
	env    *guard
	dbc    *guard

	mu    sync.Mutex
	stmts map[*guard]struct{}
}

func (r *resources) track(g *guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts[g] = struct{}{}
}

func (r *resources) untrack(g *guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stmts, g)
}

// release tears down in hierarchy order: statements, then connection,
// then environment.
func (r *resources) release() {
	r.mu.Lock()
	stmts := make([]*guard, 0, len(r.stmts))
	for g := range r.stmts {
		stmts = append(stmts, g)
	}
	clear(r.stmts)
	r.mu.Unlock()

	for _, g := range stmts {
		g.release()
	}
	r.dbc.release()
	r.env.release()
}

// Conn is a connection to a data source.
type Conn struct {
	api    native.API
	opts   *options
	res    *resources
	closed atomic.Bool
}

// New allocates an environment handle and a connection handle under it.
// The connection is not connected yet.
func New(api native.API, opts ...Option) (*Conn, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	env, err := allocate(api, o.logger, native.HandleEnv, native.HandleEnv, native.NullHandle)
	if err != nil {
		return nil, err
	}
	dbc, err := allocate(api, o.logger, native.HandleDbc, native.HandleEnv, env.handle())
	if err != nil {
		env.release()
		return nil, err
	}

	c := &Conn{
		api:  api,
		opts: o,
		res: &resources{
			logger: o.logger,
			env:    env,
			dbc:    dbc,
			stmts:  make(map[*guard]struct{}),
		},
	}
	// Every Stmt refers back to c, so the finalizer runs only once no
	// statement of c is reachable either.
	runtime.SetFinalizer(c, func(c *Conn) {
		if !c.closed.Load() {
			c.res.logger.Warn("ifx.Conn was not closed", slog.Uint64("handle", uint64(c.res.dbc.handle())))
			c.res.release()
		}
	})
	return c, nil
}

// Connected reports whether a connect call has succeeded.
func (c *Conn) Connected() bool {
	return c.res.dbc.connected.Load()
}

func (c *Conn) checkConnectable() error {
	if c.closed.Load() {
		return errorf(KindInvalidState, "connection is closed")
	}
	if c.Connected() {
		return errorf(KindConnection, "already connected")
	}
	return nil
}

// ConnectWithString connects with SQLDriverConnect. dsn is passed to the
// driver verbatim; the completed connection string the driver returns is
// discarded.
func (c *Conn) ConnectWithString(ctx context.Context, dsn string) (err error) {
	ctx, span := c.opts.startSpan(ctx, "ifx.ConnectWithString", "")
	defer func() { endSpan(span, err) }()

	if err = ctxErr(ctx, KindConnection); err != nil {
		return err
	}
	if err = c.checkConnectable(); err != nil {
		return err
	}
	if strings.IndexByte(dsn, 0) >= 0 {
		return errorf(KindConnection, "connection string contains a NUL byte")
	}

	dbc := c.res.dbc.handle()
	_, ret := c.api.DriverConnect(dbc, dsn, native.DriverConnectOutLen)
	if !ret.Succeeded() {
		return nativeErr(c.api, KindConnection, native.HandleDbc, dbc, "SQLDriverConnect", ret, "cannot connect")
	}
	c.connected(ret)
	return nil
}

// Connect connects with SQLConnect.
func (c *Conn) Connect(ctx context.Context, server, user, password string) (err error) {
	ctx, span := c.opts.startSpan(ctx, "ifx.Connect", "")
	defer func() { endSpan(span, err) }()

	if err = ctxErr(ctx, KindConnection); err != nil {
		return err
	}
	if err = c.checkConnectable(); err != nil {
		return err
	}
	if strings.IndexByte(server+user+password, 0) >= 0 {
		return errorf(KindConnection, "connection arguments contain a NUL byte")
	}

	dbc := c.res.dbc.handle()
	if ret := c.api.Connect(dbc, server, user, password); !ret.Succeeded() {
		return nativeErr(c.api, KindConnection, native.HandleDbc, dbc, "SQLConnect", ret, "cannot connect to "+server)
	}
	c.connected(native.Success)
	return nil
}

func (c *Conn) connected(ret native.Return) {
	c.res.dbc.connected.Store(true)
	if ret == native.SuccessWithInfo {
		c.opts.logger.Debug("connected with warnings",
			slog.String("diagnostic", diagnose(c.api, native.HandleDbc, c.res.dbc.handle()).String()))
	}
}

func (c *Conn) checkConnected(kind Kind) error {
	if c.closed.Load() {
		return errorf(KindInvalidState, "connection is closed")
	}
	if !c.Connected() {
		return errorf(kind, "not connected")
	}
	return nil
}

func (c *Conn) newStmt(sql string) (*Stmt, error) {
	dbc := c.res.dbc.handle()
	g, err := allocate(c.api, c.opts.logger, native.HandleStmt, native.HandleDbc, dbc)
	if err != nil {
		return nil, err
	}
	c.res.track(g)
	return &Stmt{
		api:     c.api,
		opts:    c.opts,
		conn:    c,
		g:       g,
		sql:     sql,
		numCols: -1,
		buf:     make([]byte, c.opts.fetchBufferSize),
	}, nil
}

// Prepare allocates a statement and prepares sql on it. On failure no
// statement handle is left behind.
func (c *Conn) Prepare(ctx context.Context, sql string) (stmt *Stmt, err error) {
	ctx, span := c.opts.startSpan(ctx, "ifx.Prepare", sql)
	defer func() { endSpan(span, err) }()

	if err = ctxErr(ctx, KindPrepareStatement); err != nil {
		return nil, err
	}
	if err = c.checkConnected(KindPrepareStatement); err != nil {
		return nil, err
	}
	if strings.IndexByte(sql, 0) >= 0 {
		return nil, errorf(KindPrepareStatement, "statement text contains a NUL byte")
	}

	stmt, err = c.newStmt(sql)
	if err != nil {
		return nil, err
	}
	if ret := c.api.Prepare(stmt.g.handle(), sql); !ret.Succeeded() {
		err = nativeErr(c.api, KindPrepareStatement, native.HandleStmt, stmt.g.handle(), "SQLPrepare", ret, "cannot prepare statement")
		stmt.Close()
		return nil, err
	}
	return stmt, nil
}

// Execute runs sql directly with SQLExecDirect on a new statement. The
// returned statement is positioned before the first row, if any.
func (c *Conn) Execute(ctx context.Context, sql string) (stmt *Stmt, err error) {
	ctx, span := c.opts.startSpan(ctx, "ifx.Execute", sql)
	defer func() { endSpan(span, err) }()

	if err = ctxErr(ctx, KindSQLExecution); err != nil {
		return nil, err
	}
	if err = c.checkConnected(KindSQLExecution); err != nil {
		return nil, err
	}
	if strings.IndexByte(sql, 0) >= 0 {
		return nil, errorf(KindSQLExecution, "statement text contains a NUL byte")
	}

	stmt, err = c.newStmt(sql)
	if err != nil {
		return nil, err
	}
	if ret := c.api.ExecDirect(stmt.g.handle(), sql); !ret.Succeeded() {
		err = nativeErr(c.api, KindSQLExecution, native.HandleStmt, stmt.g.handle(), "SQLExecDirect", ret, "cannot execute statement")
		stmt.Close()
		return nil, err
	}
	stmt.executed()
	return stmt, nil
}

// QueryWithParameters prepares sql, binds params to ordinals 1..n,
// executes and reads every row. It returns nil rows when the statement
// produced no rows or no result set at all.
func (c *Conn) QueryWithParameters(ctx context.Context, sql string, params ...Param) (rows []Row, err error) {
	ctx, span := c.opts.startSpan(ctx, "ifx.QueryWithParameters", sql)
	defer func() { endSpan(span, err) }()

	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	if err = stmt.BindAll(params...); err != nil {
		return nil, err
	}
	if err = stmt.Execute(ctx); err != nil {
		return nil, err
	}
	rows, err = stmt.FetchAll()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows, nil
}

// Cursor returns a cursor over c.
func (c *Conn) Cursor() *Cursor {
	return &Cursor{conn: c}
}

// Close releases every statement still open on c, disconnects and frees
// the connection and environment handles. Failures are logged. Close is
// idempotent and always returns nil.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.res.release()
	runtime.SetFinalizer(c, nil)
	return nil
}
