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

package sqlemu

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrytern/ifx/native"
)

func connected(t *testing.T, e *Emulator) (env, dbc native.Handle) {
	t.Helper()
	env, ret := e.AllocHandle(native.HandleEnv, native.NullHandle)
	require.Equal(t, native.Success, ret)
	dbc, ret = e.AllocHandle(native.HandleDbc, env)
	require.Equal(t, native.Success, ret)
	_, ret = e.DriverConnect(dbc, "DRIVER=sqlite;DATABASE=:memory:", native.DriverConnectOutLen)
	require.Equal(t, native.Success, ret)
	t.Cleanup(func() {
		e.Disconnect(dbc)
		e.FreeHandle(native.HandleDbc, dbc)
		e.FreeHandle(native.HandleEnv, env)
	})
	return env, dbc
}

func execDirect(t *testing.T, e *Emulator, dbc native.Handle, query string) native.Handle {
	t.Helper()
	stmt, ret := e.AllocHandle(native.HandleStmt, dbc)
	require.Equal(t, native.Success, ret)
	require.Equal(t, native.Success, e.ExecDirect(stmt, query), diag(e, native.HandleStmt, stmt))
	return stmt
}

func diag(e *Emulator, typ native.HandleType, h native.Handle) string {
	state, code, msg, _ := e.GetDiagRec(typ, h, 1)
	return fmt.Sprintf("%s %d %s", state, code, msg)
}

func getString(t *testing.T, e *Emulator, stmt native.Handle, col uint16, size int) (string, int64, native.Return) {
	t.Helper()
	buf := make([]byte, size)
	ind, ret := e.GetData(stmt, col, native.CChar, buf)
	if ind < 0 || !ret.Succeeded() {
		return "", ind, ret
	}
	n := strings.IndexByte(string(buf), 0)
	return string(buf[:n]), ind, ret
}

func TestHandleHierarchy(t *testing.T) {
	e := New()
	env, ret := e.AllocHandle(native.HandleEnv, native.NullHandle)
	require.Equal(t, native.Success, ret)
	dbc, ret := e.AllocHandle(native.HandleDbc, env)
	require.Equal(t, native.Success, ret)

	_, ret = e.AllocHandle(native.HandleStmt, dbc)
	assert.Equal(t, native.Error, ret, "statement on an unconnected handle")
	state, _, _, ret := e.GetDiagRec(native.HandleDbc, dbc, 1)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, "08003", state)

	_, ret = e.DriverConnect(dbc, "", native.DriverConnectOutLen)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, native.Error, e.FreeHandle(native.HandleEnv, env), "environment with a live connection")
	assert.Equal(t, native.Error, e.FreeHandle(native.HandleDbc, dbc), "connected handle")

	require.Equal(t, native.Success, e.Disconnect(dbc))
	require.Equal(t, native.Success, e.FreeHandle(native.HandleDbc, dbc))
	require.Equal(t, native.Success, e.FreeHandle(native.HandleEnv, env))
	assert.Zero(t, e.Live())

	assert.Equal(t, native.InvalidHandle, e.FreeHandle(native.HandleEnv, env), "double free")
	assert.Equal(t, native.InvalidHandle, e.FreeHandle(native.HandleStmt, dbc), "wrong level")
}

func TestDisconnectFreesStatements(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt := execDirect(t, e, dbc, "SELECT 1")
	assert.Equal(t, 1, e.LiveByType()[native.HandleStmt])

	require.Equal(t, native.Success, e.Disconnect(dbc))
	assert.Zero(t, e.LiveByType()[native.HandleStmt])
	assert.Equal(t, native.InvalidHandle, e.FreeHandle(native.HandleStmt, stmt))
	assert.Equal(t, native.InvalidHandle, e.Fetch(stmt))
}

func TestDriverConnect(t *testing.T) {
	e := New()
	env, _ := e.AllocHandle(native.HandleEnv, native.NullHandle)
	dbc, _ := e.AllocHandle(native.HandleDbc, env)

	out, ret := e.DriverConnect(dbc, "SERVER=ol_informix;DATABASE=:memory:;UID=informix", 8)
	assert.Equal(t, native.SuccessWithInfo, ret)
	assert.Equal(t, "DRIVER=", out)

	_, ret = e.DriverConnect(dbc, "DATABASE=:memory:", native.DriverConnectOutLen)
	assert.Equal(t, native.Error, ret)
	state, _, _, _ := e.GetDiagRec(native.HandleDbc, dbc, 1)
	assert.Equal(t, "08002", state)

	require.Equal(t, native.Success, e.Disconnect(dbc))
	assert.Equal(t, native.Error, e.Disconnect(dbc))

	_, ret = e.DriverConnect(dbc, "DRIVER=oracle", native.DriverConnectOutLen)
	assert.Equal(t, native.Error, ret)
	state, _, msg, _ := e.GetDiagRec(native.HandleDbc, dbc, 1)
	assert.Equal(t, "08001", state)
	assert.Contains(t, msg, "oracle")

	_, ret = e.DriverConnect(dbc, "DRIVER=mysql;DATABASE=not a dsn", native.DriverConnectOutLen)
	assert.Equal(t, native.Error, ret)
}

func TestFetchAndGetData(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt := execDirect(t, e, dbc, "SELECT 42 AS answer, NULL AS nothing, 'informix' AS name")

	n, ret := e.NumResultCols(stmt)
	require.Equal(t, native.Success, ret)
	assert.EqualValues(t, 3, n)

	require.Equal(t, native.Success, e.Fetch(stmt))
	v, ind, ret := getString(t, e, stmt, 1, 64)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, "42", v)
	assert.EqualValues(t, 2, ind)

	_, ind, ret = getString(t, e, stmt, 2, 64)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, native.NullData, ind)

	_, _, ret = getString(t, e, stmt, 1, 64)
	assert.Equal(t, native.NoData, ret, "column already consumed")

	_, _, ret = getString(t, e, stmt, 4, 64)
	require.Equal(t, native.Error, ret)
	state, code, msg, _ := e.GetDiagRec(native.HandleStmt, stmt, 1)
	assert.Equal(t, native.StateInvalidDescriptorIndex, state)
	assert.Equal(t, native.NativeInvalidDescriptorIndex, code)
	assert.Contains(t, msg, native.MessageInvalidDescriptorIndex)

	assert.Equal(t, native.NoData, e.Fetch(stmt))
	assert.Equal(t, native.NoData, e.Fetch(stmt))
}

func TestGetDataPiecewise(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt := execDirect(t, e, dbc, "SELECT 'abcdefghij'")
	require.Equal(t, native.Success, e.Fetch(stmt))

	var parts []string
	for {
		v, _, ret := getString(t, e, stmt, 1, 4)
		if ret == native.NoData {
			break
		}
		require.True(t, ret.Succeeded())
		parts = append(parts, v)
		if ret == native.Success {
			break
		}
		state, _, _, _ := e.GetDiagRec(native.HandleStmt, stmt, 1)
		assert.Equal(t, "01004", state)
	}
	assert.Equal(t, []string{"abc", "def", "ghi", "j"}, parts)
}

func TestBindDecoding(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt, _ := e.AllocHandle(native.HandleStmt, dbc)
	require.Equal(t, native.Success, e.Prepare(stmt, "SELECT ?, ?, ?"))

	textLen := int64(5)
	binds := []native.Binding{
		{Ordinal: 1, IOType: native.ParamInput, ValueType: native.CLong, ParamType: native.TypeInteger, Value: native.LongBytes(-7)},
		{Ordinal: 2, IOType: native.ParamInput, ValueType: native.CChar, ParamType: native.TypeVarchar, ColumnSize: 5, Value: []byte("hello world"), Indicator: &textLen},
		{Ordinal: 3, IOType: native.ParamInput, ValueType: native.CTypeDate, ParamType: native.TypeDate, ColumnSize: 10,
			Value: native.DateStruct{Year: 2024, Month: 9, Day: 7}.Bytes()},
	}
	for _, b := range binds {
		require.Equal(t, native.Success, e.BindParameter(stmt, b))
	}
	require.Equal(t, native.Success, e.Execute(stmt))
	require.Equal(t, native.Success, e.Fetch(stmt))

	for col, want := range []string{"-7", "hello", "2024-09-07"} {
		v, _, ret := getString(t, e, stmt, uint16(col+1), 64)
		require.Equal(t, native.Success, ret)
		assert.Equal(t, want, v)
	}
}

func TestLastBindWins(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt, _ := e.AllocHandle(native.HandleStmt, dbc)
	require.Equal(t, native.Success, e.Prepare(stmt, "SELECT ?"))

	for _, v := range []int32{1, 2} {
		require.Equal(t, native.Success, e.BindParameter(stmt, native.Binding{
			Ordinal: 1, IOType: native.ParamInput, ValueType: native.CLong, ParamType: native.TypeInteger, Value: native.LongBytes(v),
		}))
	}
	require.Equal(t, native.Success, e.Execute(stmt))
	require.Equal(t, native.Success, e.Fetch(stmt))
	v, _, _ := getString(t, e, stmt, 1, 16)
	assert.Equal(t, "2", v)
}

func TestStatementSequence(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt, _ := e.AllocHandle(native.HandleStmt, dbc)

	assert.Equal(t, native.Error, e.Execute(stmt), "execute before prepare")
	_, ret := e.NumResultCols(stmt)
	assert.Equal(t, native.Error, ret)
	assert.Equal(t, native.Error, e.Fetch(stmt))
	state, _, _, _ := e.GetDiagRec(native.HandleStmt, stmt, 1)
	assert.Equal(t, "24000", state)

	assert.Equal(t, native.Error, e.Prepare(stmt, "SELEC nonsense"))
	state, code, _, _ := e.GetDiagRec(native.HandleStmt, stmt, 1)
	assert.Equal(t, "42000", state)
	assert.EqualValues(t, -201, code)

	require.Equal(t, native.Success, e.ExecDirect(stmt, "CREATE TABLE t (id INTEGER)"))
	n, ret := e.NumResultCols(stmt)
	require.Equal(t, native.Success, ret)
	assert.Zero(t, n)

	require.Equal(t, native.Success, e.ExecDirect(stmt, "INSERT INTO t VALUES (1), (2)"))
	affected, ret := e.RowCount(stmt)
	require.Equal(t, native.Success, ret)
	assert.EqualValues(t, 2, affected)

	require.Equal(t, native.Success, e.ExecDirect(stmt, "SELECT id FROM t"))
	assert.Equal(t, native.Error, e.Execute(stmt), "cursor still open")
	require.Equal(t, native.Success, e.FreeStmt(stmt, native.CloseCursor))
	require.Equal(t, native.Success, e.Execute(stmt))

	desc, ret := e.DescribeCol(stmt, 1)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, "id", desc.Name)
	assert.Equal(t, native.TypeInteger, desc.DataType)
	_, ret = e.DescribeCol(stmt, 2)
	assert.Equal(t, native.Error, ret)
}

func TestMissingParameter(t *testing.T) {
	e := New()
	_, dbc := connected(t, e)
	stmt, _ := e.AllocHandle(native.HandleStmt, dbc)
	require.Equal(t, native.Success, e.Prepare(stmt, "SELECT ?, ?"))
	require.Equal(t, native.Success, e.BindParameter(stmt, native.Binding{
		Ordinal: 2, IOType: native.ParamInput, ValueType: native.CLong, Value: native.LongBytes(1),
	}))
	assert.Equal(t, native.Error, e.Execute(stmt))
	state, _, _, _ := e.GetDiagRec(native.HandleStmt, stmt, 1)
	assert.Equal(t, "07002", state)

	require.Equal(t, native.Success, e.FreeStmt(stmt, native.ResetParams))
	for _, ord := range []uint16{2, 1} {
		require.Equal(t, native.Success, e.BindParameter(stmt, native.Binding{
			Ordinal: ord, IOType: native.ParamInput, ValueType: native.CLong, Value: native.LongBytes(int32(ord)),
		}))
	}
	require.Equal(t, native.Success, e.Execute(stmt))
}

func TestRewritePlaceholders(t *testing.T) {
	assert.Equal(t, "SELECT ?", rewritePlaceholders(EngineSQLite, "SELECT ?"))
	assert.Equal(t, "SELECT $1, '?', $2", rewritePlaceholders(EnginePgx, "SELECT ?, '?', ?"))
}

func TestParseDataSource(t *testing.T) {
	ds := parseDataSource("SERVER=ol;driver=PGX; database = postgres://localhost/db ;UID=x")
	assert.Equal(t, EnginePgx, ds.engine)
	assert.Equal(t, "postgres://localhost/db", ds.database)

	ds = parseDataSource("SERVER=ol_informix")
	assert.Equal(t, EngineSQLite, ds.engine)
	assert.Equal(t, defaultDatabase, ds.database)
	assert.NoError(t, ds.validate())
}

func TestFaults(t *testing.T) {
	e := New()
	f := Inject(e)
	env, _ := f.AllocHandle(native.HandleEnv, native.NullHandle)
	dbc, _ := f.AllocHandle(native.HandleDbc, env)

	f.Fail(CallDriverConnect, Fault{Return: native.Error, State: "28000", NativeError: -951, Message: "Incorrect password", Times: 1})
	_, ret := f.DriverConnect(dbc, "", native.DriverConnectOutLen)
	require.Equal(t, native.Error, ret)
	state, code, msg, ret := f.GetDiagRec(native.HandleDbc, dbc, 1)
	require.Equal(t, native.Success, ret)
	assert.Equal(t, "28000", state)
	assert.EqualValues(t, -951, code)
	assert.Equal(t, "Incorrect password", msg)

	_, ret = f.DriverConnect(dbc, "", native.DriverConnectOutLen)
	assert.Equal(t, native.Success, ret, "fault fires once")
	assert.Equal(t, 2, f.Calls(CallDriverConnect))

	f.Fail(CallFetch, Fault{Return: native.Error, After: 1})
	stmt, _ := f.AllocHandle(native.HandleStmt, dbc)
	require.Equal(t, native.Success, f.ExecDirect(stmt, "VALUES (1), (2)"))
	assert.Equal(t, native.Success, f.Fetch(stmt))
	assert.Equal(t, native.Error, f.Fetch(stmt))

	f.Reset()
	assert.Equal(t, native.Success, f.Fetch(stmt))
	require.Equal(t, native.Success, f.Disconnect(dbc))
	require.Equal(t, native.Success, f.FreeHandle(native.HandleDbc, dbc))
	require.Equal(t, native.Success, f.FreeHandle(native.HandleEnv, env))
	assert.Zero(t, e.Live())
}
