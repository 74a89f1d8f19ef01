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

// Package validation is an implementation-agnostic test suite for
// native.API implementations. It checks the handle lifecycle rules the
// ifx package relies on and runs the ifx connection and statement
// operations end to end.
//
// An implementation runs it by providing Quirks:
//
//	func TestValidation(t *testing.T) {
//		q := &myQuirks{}
//		suite.Run(t, &validation.HandleTests{Quirks: q})
//		suite.Run(t, &validation.ConnectionTests{Quirks: q})
//		suite.Run(t, &validation.StatementTests{Quirks: q})
//	}
package validation

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/suite"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

type Quirks interface {
	// Called in SetupTest to obtain the implementation under test
	SetupAPI(*testing.T) native.API
	// Called in TearDownTest, after every handle of the test was
	// released, e.g. to check for leaks
	TearDownAPI(*testing.T, native.API)
	// Connection string handed to SQLDriverConnect
	ConnectionString() string
	// A query returning one row whose only column is parameter 1
	EchoQuery() string
	// A query returning one column and no rows
	EmptyQuery() string
	// DDL creating table name with columns (id INTEGER, name VARCHAR(n))
	CreateTable(name string) string
	// The SQL_C_CHAR form in which the driver returns a DATE value
	FormatDate(civil.Date) string
}

// HandleTests exercises the native handle hierarchy directly.
type HandleTests struct {
	suite.Suite

	API    native.API
	Quirks Quirks
}

func (h *HandleTests) SetupTest() {
	h.API = h.Quirks.SetupAPI(h.T())
}

func (h *HandleTests) TearDownTest() {
	h.Quirks.TearDownAPI(h.T(), h.API)
	h.API = nil
}

func (h *HandleTests) alloc(typ native.HandleType, parent native.Handle) native.Handle {
	hnd, ret := h.API.AllocHandle(typ, parent)
	h.Require().True(ret.Succeeded(), "SQLAllocHandle(%s) returned %s", typ, ret)
	return hnd
}

func (h *HandleTests) connect() (env, dbc native.Handle) {
	env = h.alloc(native.HandleEnv, native.NullHandle)
	dbc = h.alloc(native.HandleDbc, env)
	_, ret := h.API.DriverConnect(dbc, h.Quirks.ConnectionString(), native.DriverConnectOutLen)
	h.Require().True(ret.Succeeded(), "SQLDriverConnect returned %s", ret)
	return env, dbc
}

func (h *HandleTests) TestHierarchy() {
	env, dbc := h.connect()
	stmt := h.alloc(native.HandleStmt, dbc)

	h.Equal(native.Success, h.API.FreeHandle(native.HandleStmt, stmt))
	h.Equal(native.Success, h.API.Disconnect(dbc))
	h.Equal(native.Success, h.API.FreeHandle(native.HandleDbc, dbc))
	h.Equal(native.Success, h.API.FreeHandle(native.HandleEnv, env))
}

func (h *HandleTests) TestDoubleFree() {
	env, dbc := h.connect()
	stmt := h.alloc(native.HandleStmt, dbc)

	h.Equal(native.Success, h.API.FreeHandle(native.HandleStmt, stmt))
	h.Equal(native.InvalidHandle, h.API.FreeHandle(native.HandleStmt, stmt))
	h.Equal(native.InvalidHandle, h.API.Prepare(stmt, "SELECT 1"))

	h.Equal(native.Success, h.API.Disconnect(dbc))
	h.Equal(native.Success, h.API.FreeHandle(native.HandleDbc, dbc))
	h.Equal(native.InvalidHandle, h.API.FreeHandle(native.HandleDbc, dbc))
	h.Equal(native.Success, h.API.FreeHandle(native.HandleEnv, env))
}

func (h *HandleTests) TestStatementWithoutConnection() {
	env := h.alloc(native.HandleEnv, native.NullHandle)
	dbc := h.alloc(native.HandleDbc, env)

	_, ret := h.API.AllocHandle(native.HandleStmt, dbc)
	h.False(ret.Succeeded())
	state, _, msg, ret := h.API.GetDiagRec(native.HandleDbc, dbc, 1)
	h.True(ret.Succeeded())
	h.Equal("08003", state)
	h.NotEmpty(msg)

	h.Equal(native.Success, h.API.FreeHandle(native.HandleDbc, dbc))
	h.Equal(native.Success, h.API.FreeHandle(native.HandleEnv, env))
}

func (h *HandleTests) TestDiagnosticRecords() {
	env, dbc := h.connect()
	stmt := h.alloc(native.HandleStmt, dbc)
	defer func() {
		h.API.FreeHandle(native.HandleStmt, stmt)
		h.API.Disconnect(dbc)
		h.API.FreeHandle(native.HandleDbc, dbc)
		h.API.FreeHandle(native.HandleEnv, env)
	}()

	h.Equal(native.Error, h.API.Prepare(stmt, "SELEC nonsense FRM"))
	state, _, msg, ret := h.API.GetDiagRec(native.HandleStmt, stmt, 1)
	h.Equal(native.Success, ret)
	h.Len(state, 5)
	h.NotEmpty(msg)

	_, _, _, ret = h.API.GetDiagRec(native.HandleStmt, stmt, 2)
	h.Equal(native.NoData, ret)
}

func (h *HandleTests) TestEndOfColumns() {
	env, dbc := h.connect()
	stmt := h.alloc(native.HandleStmt, dbc)
	defer func() {
		h.API.FreeHandle(native.HandleStmt, stmt)
		h.API.Disconnect(dbc)
		h.API.FreeHandle(native.HandleDbc, dbc)
		h.API.FreeHandle(native.HandleEnv, env)
	}()

	h.Require().Equal(native.Success, h.API.ExecDirect(stmt, "SELECT 1 AS a"))
	h.Require().True(h.API.Fetch(stmt).Succeeded())

	buf := make([]byte, 16)
	_, ret := h.API.GetData(stmt, 1, native.CChar, buf)
	h.Equal(native.Success, ret)
	_, ret = h.API.GetData(stmt, 2, native.CChar, buf)
	h.Equal(native.Error, ret)
	state, nativeErr, _, _ := h.API.GetDiagRec(native.HandleStmt, stmt, 1)
	h.True(state == native.StateInvalidDescriptorIndex || nativeErr == native.NativeInvalidDescriptorIndex,
		"state %s native error %d", state, nativeErr)

	h.Equal(native.NoData, h.API.Fetch(stmt))
}

// ConnectionTests exercises ifx.Conn.
type ConnectionTests struct {
	suite.Suite

	API    native.API
	Quirks Quirks
	ctx    context.Context
}

func (c *ConnectionTests) SetupTest() {
	c.API = c.Quirks.SetupAPI(c.T())
	c.ctx = context.Background()
}

func (c *ConnectionTests) TearDownTest() {
	c.Quirks.TearDownAPI(c.T(), c.API)
	c.API = nil
}

func (c *ConnectionTests) TestConnect() {
	conn, err := ifx.New(c.API)
	c.Require().NoError(err)
	c.False(conn.Connected())

	c.Require().NoError(conn.ConnectWithString(c.ctx, c.Quirks.ConnectionString()))
	c.True(conn.Connected())
	c.NoError(conn.Close())
}

func (c *ConnectionTests) TestConnectTwice() {
	conn, err := ifx.New(c.API)
	c.Require().NoError(err)
	defer conn.Close()

	c.Require().NoError(conn.ConnectWithString(c.ctx, c.Quirks.ConnectionString()))
	c.ErrorIs(conn.ConnectWithString(c.ctx, c.Quirks.ConnectionString()), ifx.ErrConnection)
}

func (c *ConnectionTests) TestCloseTwice() {
	conn, err := ifx.New(c.API)
	c.Require().NoError(err)
	c.Require().NoError(conn.ConnectWithString(c.ctx, c.Quirks.ConnectionString()))

	c.NoError(conn.Close())
	c.NoError(conn.Close())
	_, err = conn.Prepare(c.ctx, c.Quirks.EchoQuery())
	c.Error(err)
}

func (c *ConnectionTests) TestConcurrentConnections() {
	first, err := ifx.New(c.API)
	c.Require().NoError(err)
	second, err := ifx.New(c.API)
	c.Require().NoError(err)

	c.Require().NoError(first.ConnectWithString(c.ctx, c.Quirks.ConnectionString()))
	c.Require().NoError(second.ConnectWithString(c.ctx, c.Quirks.ConnectionString()))

	c.NoError(first.Close())
	rows, err := second.QueryWithParameters(c.ctx, c.Quirks.EchoQuery(), ifx.Int(1))
	c.NoError(err)
	c.Equal([]ifx.Row{{"1"}}, rows)
	c.NoError(second.Close())
}

// StatementTests exercises ifx.Stmt over a connected ifx.Conn.
type StatementTests struct {
	suite.Suite

	API    native.API
	Quirks Quirks
	Conn   *ifx.Conn
	ctx    context.Context
}

func (s *StatementTests) SetupTest() {
	s.API = s.Quirks.SetupAPI(s.T())
	s.ctx = context.Background()
	var err error
	s.Conn, err = ifx.New(s.API)
	s.Require().NoError(err)
	s.Require().NoError(s.Conn.ConnectWithString(s.ctx, s.Quirks.ConnectionString()))
}

func (s *StatementTests) TearDownTest() {
	s.NoError(s.Conn.Close())
	s.Conn = nil
	s.Quirks.TearDownAPI(s.T(), s.API)
	s.API = nil
}

func (s *StatementTests) TestEcho() {
	date := civil.Date{Year: 2024, Month: 9, Day: 7}
	cases := []struct {
		param ifx.Param
		want  string
	}{
		{ifx.Int(1), "1"},
		{ifx.Int(-2147483648), "-2147483648"},
		{ifx.Text("informix"), "informix"},
		{ifx.Text("a text that is longer than a single fetch buffer of the smallest size"), "a text that is longer than a single fetch buffer of the smallest size"},
		{ifx.Date(date), s.Quirks.FormatDate(date)},
	}
	for _, tc := range cases {
		rows, err := s.Conn.QueryWithParameters(s.ctx, s.Quirks.EchoQuery(), tc.param)
		s.Require().NoError(err, tc.param.Kind().String())
		s.Equal([]ifx.Row{{tc.want}}, rows, tc.param.Kind().String())
	}
}

func (s *StatementTests) TestEmptyResult() {
	stmt, err := s.Conn.Execute(s.ctx, s.Quirks.EmptyQuery())
	s.Require().NoError(err)
	defer stmt.Close()

	for range 3 {
		row, ok, err := stmt.Fetch()
		s.NoError(err)
		s.False(ok)
		s.Nil(row)
	}

	rows, err := s.Conn.QueryWithParameters(s.ctx, s.Quirks.EmptyQuery())
	s.NoError(err)
	s.Nil(rows)
}

func (s *StatementTests) TestTableRoundTrip() {
	stmt, err := s.Conn.Execute(s.ctx, s.Quirks.CreateTable("validation_items"))
	s.Require().NoError(err)
	s.NoError(stmt.Close())

	insert, err := s.Conn.Prepare(s.ctx, "INSERT INTO validation_items (id, name) VALUES (?, ?)")
	s.Require().NoError(err)
	for i, name := range []string{"a", "b", "c"} {
		_, err := insert.Query(s.ctx, ifx.Int(int32(i+1)), ifx.Text(name))
		s.Require().NoError(err)
		n, err := insert.RowCount()
		s.NoError(err)
		s.EqualValues(1, n)
	}
	s.NoError(insert.Close())

	rows, err := s.Conn.QueryWithParameters(s.ctx, "SELECT id, name FROM validation_items WHERE id >= ? ORDER BY id", ifx.Int(2))
	s.Require().NoError(err)
	s.Equal([]ifx.Row{{"2", "b"}, {"3", "c"}}, rows)

	rows, err = s.Conn.QueryWithParameters(s.ctx, "SELECT id, name FROM validation_items WHERE id > ?", ifx.Int(100))
	s.NoError(err)
	s.Nil(rows)
}

func (s *StatementTests) TestLastBindWins() {
	stmt, err := s.Conn.Prepare(s.ctx, s.Quirks.EchoQuery())
	s.Require().NoError(err)
	defer stmt.Close()

	s.Require().NoError(stmt.Bind(1, ifx.Text("first")))
	s.Require().NoError(stmt.Bind(1, ifx.Text("second")))
	s.Require().NoError(stmt.Execute(s.ctx))
	rows, err := stmt.FetchAll()
	s.NoError(err)
	s.Equal([]ifx.Row{{"second"}}, rows)
}

func (s *StatementTests) TestDescribeColumns() {
	stmt, err := s.Conn.Execute(s.ctx, s.Quirks.CreateTable("validation_described"))
	s.Require().NoError(err)
	s.NoError(stmt.Close())

	stmt, err = s.Conn.Execute(s.ctx, "SELECT id, name FROM validation_described")
	s.Require().NoError(err)
	defer stmt.Close()

	cols, err := stmt.DescribeColumns()
	s.Require().NoError(err)
	s.Require().Len(cols, 2)
	for i, c := range cols {
		s.Equal(i+1, c.Ordinal)
		s.NotEmpty(c.Name)
	}
	s.Equal(native.TypeInteger, cols[0].DataType)
}

func (s *StatementTests) TestCloseOrders() {
	a, err := s.Conn.Prepare(s.ctx, s.Quirks.EchoQuery())
	s.Require().NoError(err)
	b, err := s.Conn.Prepare(s.ctx, s.Quirks.EchoQuery())
	s.Require().NoError(err)

	s.NoError(b.Close())
	s.NoError(b.Close())
	// a is released by the connection
	s.NoError(s.Conn.Close())
	s.NoError(a.Close())
	_, err = a.Query(s.ctx, ifx.Int(1))
	s.ErrorIs(err, ifx.ErrInvalidState)
}
