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

// Diagnostic is one diagnostic record of a handle.
type Diagnostic struct {
	State       string
	NativeError int32
	Message     string
	// Unavailable is the return code of SQLGetDiagRec when no record
	// could be read; the other fields are empty in that case.
	Unavailable native.Return
}

func (d Diagnostic) String() string {
	if d.Unavailable != native.Success {
		return fmt.Sprintf("no diagnostic available (SQLGetDiagRec returned %s)", d.Unavailable)
	}
	return fmt.Sprintf("SQLSTATE = %s, Native Error = %d, Message = %s", d.State, d.NativeError, d.Message)
}

// diagnose reads record 1 of h.
func diagnose(api native.API, typ native.HandleType, h native.Handle) *Diagnostic {
	state, nativeErr, msg, ret := api.GetDiagRec(typ, h, 1)
	if !ret.Succeeded() {
		return &Diagnostic{Unavailable: ret}
	}
	return &Diagnostic{State: state, NativeError: nativeErr, Message: msg}
}

// nativeErr builds the Error for a failed native call on h.
func nativeErr(api native.API, kind Kind, typ native.HandleType, h native.Handle, op string, ret native.Return, msg string) *Error {
	e := &Error{Kind: kind, Op: op, Code: ret, Msg: msg}
	// SQL_INVALID_HANDLE leaves nothing to query
	if ret != native.InvalidHandle && h != native.NullHandle {
		e.Diagnostic = diagnose(api, typ, h)
	}
	return e
}

// invalidDescriptorIndex reports whether d is the driver's complaint
// about a column ordinal past the last column.
func invalidDescriptorIndex(d *Diagnostic) bool {
	if d == nil || d.Unavailable != native.Success {
		return false
	}
	return d.State == native.StateInvalidDescriptorIndex ||
		d.NativeError == native.NativeInvalidDescriptorIndex ||
		strings.Contains(strings.ToLower(d.Message), strings.ToLower(native.MessageInvalidDescriptorIndex))
}
