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

// Package native describes the call-level interface of the Informix CLI
// (an ODBC-style API) as a Go interface, one method per native call.
//
// Implementations own the native resources behind each Handle. The
// package ifx layers ownership, error translation and the fetch protocol
// on top of it; nothing in this package frees anything on its own.
//
// A Handle is an opaque id. Implementations resolve it through an arena
// so that a stale or already freed Handle reports InvalidHandle instead
// of reaching freed driver memory. Handles may be passed between
// goroutines, but a single connection (and the statements under it) must
// not be used by two goroutines at the same time.
package native

// Handle is an opaque reference to driver-managed state. The zero value
// is the null handle.
type Handle uint64

// NullHandle is passed as the parent when allocating an environment.
const NullHandle Handle = 0

// ColumnDescription is the result of SQLDescribeCol.
type ColumnDescription struct {
	Name          string
	DataType      SQLType
	ColumnSize    uint64
	DecimalDigits int16
	Nullable      Nullability
}

// Binding is the argument list of SQLBindParameter for an input
// parameter.
//
// Value is the raw parameter buffer. BindParameter implementations must
// keep their own copy of it until the ordinal is re-bound, the
// parameters are reset, or the statement is freed; the caller may reuse
// Value once BindParameter returns.
//
// Indicator is the StrLen_or_IndPtr value. A nil Indicator is passed to
// the driver as a null pointer, which means "fixed size, not NULL".
type Binding struct {
	Ordinal       uint16
	IOType        ParamIOType
	ValueType     CType
	ParamType     SQLType
	ColumnSize    uint64
	DecimalDigits int16
	Value         []byte
	Indicator     *int64
}

// API is the native call surface. Each method maps onto exactly one CLI
// function and returns its raw return code; output parameters become
// additional results.
type API interface {
	// AllocHandle is SQLAllocHandle.
	AllocHandle(typ HandleType, parent Handle) (Handle, Return)
	// FreeHandle is SQLFreeHandle.
	FreeHandle(typ HandleType, h Handle) Return
	// GetDiagRec is SQLGetDiagRec. rec is 1-based.
	GetDiagRec(typ HandleType, h Handle, rec int16) (state string, nativeErr int32, msg string, ret Return)

	// DriverConnect is SQLDriverConnect with SQL_DRIVER_NOPROMPT. outLen is
	// the size of the buffer receiving the completed connection string.
	DriverConnect(dbc Handle, connStr string, outLen int) (out string, ret Return)
	// Connect is SQLConnect.
	Connect(dbc Handle, server, user, password string) Return
	// Disconnect is SQLDisconnect.
	Disconnect(dbc Handle) Return

	// Prepare is SQLPrepare.
	Prepare(stmt Handle, sql string) Return
	// BindParameter is SQLBindParameter.
	BindParameter(stmt Handle, b Binding) Return
	// Execute is SQLExecute.
	Execute(stmt Handle) Return
	// ExecDirect is SQLExecDirect.
	ExecDirect(stmt Handle, sql string) Return
	// NumResultCols is SQLNumResultCols.
	NumResultCols(stmt Handle) (int16, Return)
	// DescribeCol is SQLDescribeCol. col is 1-based.
	DescribeCol(stmt Handle, col uint16) (ColumnDescription, Return)
	// RowCount is SQLRowCount.
	RowCount(stmt Handle) (int64, Return)
	// Fetch is SQLFetch.
	Fetch(stmt Handle) Return
	// GetData is SQLGetData into buf. The returned indicator is the
	// StrLen_or_Ind output: NullData, NoTotal, or the number of bytes
	// that were available before this call.
	GetData(stmt Handle, col uint16, target CType, buf []byte) (indicator int64, ret Return)
	// FreeStmt is SQLFreeStmt.
	FreeStmt(stmt Handle, opt FreeStmtOption) Return
}
