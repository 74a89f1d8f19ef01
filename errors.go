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
	"fmt"
	"strings"

	"github.com/berrytern/ifx/native"
)

// Kind classifies an Error by the operation that failed.
type Kind uint8

const (
	KindUnknown          Kind = iota // UnknownError
	KindHandleAllocation             // HandleAllocationError
	KindConnection                   // ConnectionError
	KindPrepareStatement             // PrepareStatementError
	KindParameterBinding             // ParameterBindingError
	KindSQLExecution                 // SQLExecutionError
	KindDataFetch                    // DataFetchError
	KindDescribeColumns              // DescribeColumnsError
	KindInvalidArgument              // InvalidArgument
	KindInvalidState                 // InvalidState
)

var kindNames = [...]string{
	KindUnknown:          "UnknownError",
	KindHandleAllocation: "HandleAllocationError",
	KindConnection:       "ConnectionError",
	KindPrepareStatement: "PrepareStatementError",
	KindParameterBinding: "ParameterBindingError",
	KindSQLExecution:     "SQLExecutionError",
	KindDataFetch:        "DataFetchError",
	KindDescribeColumns:  "DescribeColumnsError",
	KindInvalidArgument:  "InvalidArgument",
	KindInvalidState:     "InvalidState",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrHandleAllocation error = KindHandleAllocation
	ErrConnection       error = KindConnection
	ErrPrepareStatement error = KindPrepareStatement
	ErrParameterBinding error = KindParameterBinding
	ErrSQLExecution     error = KindSQLExecution
	ErrDataFetch        error = KindDataFetch
	ErrDescribeColumns  error = KindDescribeColumns
	ErrInvalidArgument  error = KindInvalidArgument
	ErrInvalidState     error = KindInvalidState
)

// Error is returned by every fallible operation of this module.
type Error struct {
	Kind Kind
	// Op is the native call that failed (e.g. "SQLExecute"), empty when
	// the failure was detected before reaching the driver.
	Op string
	// Code is the return code of Op.
	Code native.Return
	// Diagnostic is record 1 of the handle Op was issued on, if any.
	Diagnostic *Diagnostic
	// Ordinal is the parameter or column the failure concerns, 0 if none.
	Ordinal int
	// Msg is a human readable description.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Op != "" {
		fmt.Fprintf(&sb, ": %s returned %s", e.Op, e.Code)
	}
	if e.Ordinal > 0 {
		fmt.Fprintf(&sb, " (ordinal %d)", e.Ordinal)
	}
	if e.Diagnostic != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Diagnostic.String())
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// SQLState returns the SQLSTATE of the diagnostic, or "".
func (e *Error) SQLState() string {
	if e.Diagnostic == nil {
		return ""
	}
	return e.Diagnostic.State
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
