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

// Package sqlemu implements native.API in pure Go on top of database/sql.
//
// It reproduces the handle, diagnostic and fetch behavior of the Informix
// CLI closely enough to exercise everything layered on top of it without
// the native library: handles live in an arena, failures leave
// diagnostic records on the handle, SQLGetData past the last column
// reports "invalid descriptor index" and long values are returned
// piecewise with 01004 truncation warnings.
//
// The engine behind a connection is chosen by the DRIVER key of the
// connection string: sqlite (modernc.org/sqlite, the default), pgx
// (github.com/jackc/pgx/v5) or mysql (github.com/go-sql-driver/mysql).
// DATABASE is the data source name handed to that driver.
package sqlemu

import (
	"log/slog"
	"sync"

	"github.com/berrytern/ifx/internal/arena"
	"github.com/berrytern/ifx/native"
)

type diagRecord struct {
	state     string
	nativeErr int32
	message   string
}

// handle is the arena entry behind a native.Handle. Statements share the
// mutex of their connection; a connection and its statements are never
// driven concurrently by a correct caller, the lock only keeps a
// misbehaving one from corrupting the emulator.
type handle struct {
	typ   native.HandleType
	mu    *sync.Mutex
	freed bool
	diags []diagRecord

	env  *environment
	conn *connection
	stmt *statement
}

type environment struct {
	conns map[native.Handle]struct{}
}

// Emulator is a native.API backed by database/sql. The zero value is not
// usable; call New.
type Emulator struct {
	logger  *slog.Logger
	handles *arena.Arena[*handle]
}

var _ native.API = (*Emulator)(nil)

// Option configures an Emulator.
type Option func(*Emulator)

// WithLogger sets the logger used for driver-side events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emulator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an emulator with no live handles.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		logger:  slog.New(slog.DiscardHandler),
		handles: arena.New[*handle](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Live is the number of handles that have been allocated and not freed.
func (e *Emulator) Live() int {
	return e.handles.Len()
}

// LiveByType is Live split by handle level.
func (e *Emulator) LiveByType() map[native.HandleType]int {
	out := make(map[native.HandleType]int)
	e.handles.Each(func(_ uint64, h *handle) bool {
		out[h.typ]++
		return true
	})
	return out
}

// lookup resolves h and locks it. The caller must unlock on ok.
func (e *Emulator) lookup(typ native.HandleType, h native.Handle) (*handle, bool) {
	obj, ok := e.handles.Get(uint64(h))
	if !ok || obj.typ != typ {
		return nil, false
	}
	obj.mu.Lock()
	if obj.freed {
		obj.mu.Unlock()
		return nil, false
	}
	obj.diags = obj.diags[:0]
	return obj, true
}

func (h *handle) fail(state string, nativeErr int32, msg string) native.Return {
	h.diags = append(h.diags, diagRecord{state: state, nativeErr: nativeErr, message: msg})
	return native.Error
}

func (h *handle) warn(state string, msg string) native.Return {
	h.diags = append(h.diags, diagRecord{state: state, message: msg})
	return native.SuccessWithInfo
}

func (e *Emulator) AllocHandle(typ native.HandleType, parent native.Handle) (native.Handle, native.Return) {
	switch typ {
	case native.HandleEnv:
		obj := &handle{typ: typ, mu: &sync.Mutex{}, env: &environment{conns: make(map[native.Handle]struct{})}}
		return native.Handle(e.handles.Insert(obj)), native.Success

	case native.HandleDbc:
		env, ok := e.lookup(native.HandleEnv, parent)
		if !ok {
			return native.NullHandle, native.InvalidHandle
		}
		defer env.mu.Unlock()
		obj := &handle{typ: typ, mu: &sync.Mutex{}, conn: &connection{
			env:   parent,
			stmts: make(map[native.Handle]struct{}),
		}}
		id := native.Handle(e.handles.Insert(obj))
		env.env.conns[id] = struct{}{}
		return id, native.Success

	case native.HandleStmt:
		dbc, ok := e.lookup(native.HandleDbc, parent)
		if !ok {
			return native.NullHandle, native.InvalidHandle
		}
		defer dbc.mu.Unlock()
		if dbc.conn.sqlConn == nil {
			return native.NullHandle, dbc.fail("08003", 0, msgPrefix+"Connection not open")
		}
		obj := &handle{typ: typ, mu: dbc.mu, stmt: &statement{
			dbc:    parent,
			conn:   dbc.conn,
			params: make(map[uint16]boundParam),
		}}
		id := native.Handle(e.handles.Insert(obj))
		dbc.conn.stmts[id] = struct{}{}
		return id, native.Success
	}
	return native.NullHandle, native.Error
}

func (e *Emulator) FreeHandle(typ native.HandleType, h native.Handle) native.Return {
	obj, ok := e.lookup(typ, h)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()

	switch typ {
	case native.HandleEnv:
		if len(obj.env.conns) > 0 {
			return obj.fail("HY010", 0, msgPrefix+"Function sequence error")
		}
	case native.HandleDbc:
		if obj.conn.sqlConn != nil {
			return obj.fail("HY010", 0, msgPrefix+"Function sequence error")
		}
		if env, ok := e.handles.Get(uint64(obj.conn.env)); ok {
			// lock order: connection, then environment
			env.mu.Lock()
			delete(env.env.conns, h)
			env.mu.Unlock()
		}
	case native.HandleStmt:
		obj.stmt.close()
		delete(obj.stmt.conn.stmts, h)
	}
	obj.freed = true
	e.handles.Remove(uint64(h))
	return native.Success
}

func (e *Emulator) GetDiagRec(typ native.HandleType, h native.Handle, rec int16) (string, int32, string, native.Return) {
	obj, ok := e.handles.Get(uint64(h))
	if !ok || obj.typ != typ {
		return "", 0, "", native.InvalidHandle
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if rec < 1 {
		return "", 0, "", native.Error
	}
	if int(rec) > len(obj.diags) {
		return "", 0, "", native.NoData
	}
	d := obj.diags[rec-1]
	return d.state, d.nativeErr, d.message, native.Success
}

const msgPrefix = "[Informix][Informix ODBC Driver]"
