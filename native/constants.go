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

package native

import "fmt"

// Return is a SQLRETURN code.
type Return int16

const (
	Success         Return = 0   // SQL_SUCCESS
	SuccessWithInfo Return = 1   // SQL_SUCCESS_WITH_INFO
	StillExecuting  Return = 2   // SQL_STILL_EXECUTING
	NeedData        Return = 99  // SQL_NEED_DATA
	NoData          Return = 100 // SQL_NO_DATA
	Error           Return = -1  // SQL_ERROR
	InvalidHandle   Return = -2  // SQL_INVALID_HANDLE
)

// Succeeded reports whether r is SQL_SUCCESS or SQL_SUCCESS_WITH_INFO.
func (r Return) Succeeded() bool {
	return r == Success || r == SuccessWithInfo
}

func (r Return) String() string {
	switch r {
	case Success:
		return "SQL_SUCCESS"
	case SuccessWithInfo:
		return "SQL_SUCCESS_WITH_INFO"
	case StillExecuting:
		return "SQL_STILL_EXECUTING"
	case NeedData:
		return "SQL_NEED_DATA"
	case NoData:
		return "SQL_NO_DATA"
	case Error:
		return "SQL_ERROR"
	case InvalidHandle:
		return "SQL_INVALID_HANDLE"
	}
	return fmt.Sprintf("SQLRETURN(%d)", int16(r))
}

// HandleType is the level of a handle in the environment → connection →
// statement hierarchy.
type HandleType int16

const (
	HandleEnv  HandleType = 1 // SQL_HANDLE_ENV
	HandleDbc  HandleType = 2 // SQL_HANDLE_DBC
	HandleStmt HandleType = 3 // SQL_HANDLE_STMT
)

func (t HandleType) String() string {
	switch t {
	case HandleEnv:
		return "environment"
	case HandleDbc:
		return "connection"
	case HandleStmt:
		return "statement"
	}
	return fmt.Sprintf("HandleType(%d)", int16(t))
}

// CType is a C data type identifier (SQL_C_*).
type CType int16

const (
	CChar     CType = 1  // SQL_C_CHAR
	CLong     CType = 4  // SQL_C_LONG
	CShort    CType = 5  // SQL_C_SHORT
	CTypeDate CType = 91 // SQL_C_TYPE_DATE
)

// SQLType is a SQL data type identifier.
type SQLType int16

const (
	TypeUnknown     SQLType = 0  // SQL_UNKNOWN_TYPE
	TypeChar        SQLType = 1  // SQL_CHAR
	TypeNumeric     SQLType = 2  // SQL_NUMERIC
	TypeDecimal     SQLType = 3  // SQL_DECIMAL
	TypeInteger     SQLType = 4  // SQL_INTEGER
	TypeSmallInt    SQLType = 5  // SQL_SMALLINT
	TypeFloat       SQLType = 6  // SQL_FLOAT
	TypeReal        SQLType = 7  // SQL_REAL
	TypeDouble      SQLType = 8  // SQL_DOUBLE
	TypeVarchar     SQLType = 12 // SQL_VARCHAR
	TypeDate        SQLType = 91 // SQL_TYPE_DATE
	TypeTimestamp   SQLType = 93 // SQL_TYPE_TIMESTAMP
	TypeLongVarchar SQLType = -1 // SQL_LONGVARCHAR
	TypeBinary      SQLType = -2 // SQL_BINARY
	TypeBigInt      SQLType = -5 // SQL_BIGINT
)

var sqlTypeNames = map[SQLType]string{
	TypeChar:        "CHAR",
	TypeNumeric:     "NUMERIC",
	TypeDecimal:     "DECIMAL",
	TypeInteger:     "INTEGER",
	TypeSmallInt:    "SMALLINT",
	TypeFloat:       "FLOAT",
	TypeReal:        "REAL",
	TypeDouble:      "DOUBLE",
	TypeVarchar:     "VARCHAR",
	TypeDate:        "DATE",
	TypeTimestamp:   "TIMESTAMP",
	TypeLongVarchar: "LONGVARCHAR",
	TypeBinary:      "BINARY",
	TypeBigInt:      "BIGINT",
}

// String returns the SQL name of t, "UNKNOWN" for types outside the
// list above.
func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParamIOType is the InputOutputType argument of SQLBindParameter.
type ParamIOType int16

const ParamInput ParamIOType = 1 // SQL_PARAM_INPUT

// Nullability is the Nullable output of SQLDescribeCol.
type Nullability int16

const (
	NoNulls         Nullability = 0 // SQL_NO_NULLS
	Nullable        Nullability = 1 // SQL_NULLABLE
	NullableUnknown Nullability = 2 // SQL_NULLABLE_UNKNOWN
)

// FreeStmtOption is the Option argument of SQLFreeStmt.
type FreeStmtOption uint16

const (
	CloseCursor FreeStmtOption = 0 // SQL_CLOSE
	Unbind      FreeStmtOption = 2 // SQL_UNBIND
	ResetParams FreeStmtOption = 3 // SQL_RESET_PARAMS
)

// Length/indicator values.
const (
	NullData int64 = -1 // SQL_NULL_DATA
	NoTotal  int64 = -4 // SQL_NO_TOTAL
	NTS      int64 = -3 // SQL_NTS
)

// Diagnostic values the driver reports when SQLGetData is asked for a
// column past the last one.
const (
	StateInvalidDescriptorIndex         = "07009"
	NativeInvalidDescriptorIndex  int32 = -11103
	MessageInvalidDescriptorIndex       = "Invalid descriptor index"
)

// DriverConnectOutLen is the size of the completed-connection-string
// buffer handed to SQLDriverConnect.
const DriverConnectOutLen = 1024
