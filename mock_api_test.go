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
	"github.com/stretchr/testify/mock"

	"github.com/berrytern/ifx/native"
)

// mockAPI is a mock implementation of native.API for testing
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) AllocHandle(typ native.HandleType, parent native.Handle) (native.Handle, native.Return) {
	args := m.Called(typ, parent)
	return args.Get(0).(native.Handle), args.Get(1).(native.Return)
}

func (m *mockAPI) FreeHandle(typ native.HandleType, h native.Handle) native.Return {
	args := m.Called(typ, h)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) GetDiagRec(typ native.HandleType, h native.Handle, rec int16) (string, int32, string, native.Return) {
	args := m.Called(typ, h, rec)
	return args.String(0), args.Get(1).(int32), args.String(2), args.Get(3).(native.Return)
}

func (m *mockAPI) DriverConnect(dbc native.Handle, connStr string, outLen int) (string, native.Return) {
	args := m.Called(dbc, connStr, outLen)
	return args.String(0), args.Get(1).(native.Return)
}

func (m *mockAPI) Connect(dbc native.Handle, server, user, password string) native.Return {
	args := m.Called(dbc, server, user, password)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) Disconnect(dbc native.Handle) native.Return {
	args := m.Called(dbc)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) Prepare(stmt native.Handle, sql string) native.Return {
	args := m.Called(stmt, sql)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) BindParameter(stmt native.Handle, b native.Binding) native.Return {
	args := m.Called(stmt, b)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) Execute(stmt native.Handle) native.Return {
	args := m.Called(stmt)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) ExecDirect(stmt native.Handle, sql string) native.Return {
	args := m.Called(stmt, sql)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) NumResultCols(stmt native.Handle) (int16, native.Return) {
	args := m.Called(stmt)
	return args.Get(0).(int16), args.Get(1).(native.Return)
}

func (m *mockAPI) DescribeCol(stmt native.Handle, col uint16) (native.ColumnDescription, native.Return) {
	args := m.Called(stmt, col)
	return args.Get(0).(native.ColumnDescription), args.Get(1).(native.Return)
}

func (m *mockAPI) RowCount(stmt native.Handle) (int64, native.Return) {
	args := m.Called(stmt)
	return args.Get(0).(int64), args.Get(1).(native.Return)
}

func (m *mockAPI) Fetch(stmt native.Handle) native.Return {
	args := m.Called(stmt)
	return args.Get(0).(native.Return)
}

func (m *mockAPI) GetData(stmt native.Handle, col uint16, target native.CType, buf []byte) (int64, native.Return) {
	args := m.Called(stmt, col, target, buf)
	return args.Get(0).(int64), args.Get(1).(native.Return)
}

func (m *mockAPI) FreeStmt(stmt native.Handle, opt native.FreeStmtOption) native.Return {
	args := m.Called(stmt, opt)
	return args.Get(0).(native.Return)
}
