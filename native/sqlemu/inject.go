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
	"sync"

	"github.com/berrytern/ifx/native"
)

// Call names accepted by Faults.Fail.
const (
	CallAllocHandle   = "AllocHandle"
	CallFreeHandle    = "FreeHandle"
	CallDriverConnect = "DriverConnect"
	CallConnect       = "Connect"
	CallDisconnect    = "Disconnect"
	CallPrepare       = "Prepare"
	CallBindParameter = "BindParameter"
	CallExecute       = "Execute"
	CallExecDirect    = "ExecDirect"
	CallNumResultCols = "NumResultCols"
	CallDescribeCol   = "DescribeCol"
	CallRowCount      = "RowCount"
	CallFetch         = "Fetch"
	CallGetData       = "GetData"
	CallFreeStmt      = "FreeStmt"
	CallGetDiagRec    = "GetDiagRec"
)

// Fault describes an injected failure. The call returns Return without
// reaching the wrapped API, and diagnostic record 1 of the handle it was
// made on reports State, NativeError and Message.
type Fault struct {
	Return      native.Return
	State       string
	NativeError int32
	Message     string
	// After is the number of matching calls that pass through before the
	// fault fires. Times is how many times it fires, 0 meaning forever.
	After int
	Times int
}

type armedFault struct {
	Fault
	seen  int
	fired int
}

type injectedDiag struct {
	typ native.HandleType
	h   native.Handle
}

// Faults wraps a native.API and fails selected calls on demand.
type Faults struct {
	native.API

	mu     sync.Mutex
	faults map[string]*armedFault
	diags  map[injectedDiag]Fault
	calls  map[string]int
}

var _ native.API = (*Faults)(nil)

// Inject wraps api.
func Inject(api native.API) *Faults {
	return &Faults{
		API:    api,
		faults: make(map[string]*armedFault),
		diags:  make(map[injectedDiag]Fault),
		calls:  make(map[string]int),
	}
}

// Fail arms f for every call named call. A later Fail for the same call
// replaces it.
func (f *Faults) Fail(call string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[call] = &armedFault{Fault: fault}
}

// Reset disarms all faults.
func (f *Faults) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.faults)
	clear(f.diags)
}

// Calls reports how many times call was made, injected or not.
func (f *Faults) Calls(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *Faults) trip(call string, typ native.HandleType, h native.Handle) (native.Return, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call]++
	if call != CallGetDiagRec {
		// like the driver, a new call clears the previous diagnostics
		delete(f.diags, injectedDiag{typ, h})
	}
	a, ok := f.faults[call]
	if !ok {
		return native.Success, false
	}
	a.seen++
	if a.seen <= a.After || (a.Times > 0 && a.fired >= a.Times) {
		return native.Success, false
	}
	a.fired++
	if a.Return == native.Error || a.Return == native.SuccessWithInfo {
		f.diags[injectedDiag{typ, h}] = a.Fault
	}
	return a.Return, true
}

func (f *Faults) GetDiagRec(typ native.HandleType, h native.Handle, rec int16) (string, int32, string, native.Return) {
	if ret, ok := f.trip(CallGetDiagRec, typ, h); ok {
		return "", 0, "", ret
	}
	f.mu.Lock()
	d, ok := f.diags[injectedDiag{typ, h}]
	if ok && rec == 1 {
		delete(f.diags, injectedDiag{typ, h})
	}
	f.mu.Unlock()
	if ok && rec == 1 {
		return d.State, d.NativeError, d.Message, native.Success
	}
	return f.API.GetDiagRec(typ, h, rec)
}

func (f *Faults) AllocHandle(typ native.HandleType, parent native.Handle) (native.Handle, native.Return) {
	parentType := native.HandleType(typ - 1)
	if ret, ok := f.trip(CallAllocHandle, parentType, parent); ok {
		return native.NullHandle, ret
	}
	return f.API.AllocHandle(typ, parent)
}

func (f *Faults) FreeHandle(typ native.HandleType, h native.Handle) native.Return {
	if ret, ok := f.trip(CallFreeHandle, typ, h); ok {
		return ret
	}
	return f.API.FreeHandle(typ, h)
}

func (f *Faults) DriverConnect(dbc native.Handle, connStr string, outLen int) (string, native.Return) {
	if ret, ok := f.trip(CallDriverConnect, native.HandleDbc, dbc); ok {
		return "", ret
	}
	return f.API.DriverConnect(dbc, connStr, outLen)
}

func (f *Faults) Connect(dbc native.Handle, server, user, password string) native.Return {
	if ret, ok := f.trip(CallConnect, native.HandleDbc, dbc); ok {
		return ret
	}
	return f.API.Connect(dbc, server, user, password)
}

func (f *Faults) Disconnect(dbc native.Handle) native.Return {
	if ret, ok := f.trip(CallDisconnect, native.HandleDbc, dbc); ok {
		return ret
	}
	return f.API.Disconnect(dbc)
}

func (f *Faults) Prepare(stmt native.Handle, sql string) native.Return {
	if ret, ok := f.trip(CallPrepare, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.Prepare(stmt, sql)
}

func (f *Faults) BindParameter(stmt native.Handle, b native.Binding) native.Return {
	if ret, ok := f.trip(CallBindParameter, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.BindParameter(stmt, b)
}

func (f *Faults) Execute(stmt native.Handle) native.Return {
	if ret, ok := f.trip(CallExecute, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.Execute(stmt)
}

func (f *Faults) ExecDirect(stmt native.Handle, sql string) native.Return {
	if ret, ok := f.trip(CallExecDirect, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.ExecDirect(stmt, sql)
}

func (f *Faults) NumResultCols(stmt native.Handle) (int16, native.Return) {
	if ret, ok := f.trip(CallNumResultCols, native.HandleStmt, stmt); ok {
		return 0, ret
	}
	return f.API.NumResultCols(stmt)
}

func (f *Faults) DescribeCol(stmt native.Handle, col uint16) (native.ColumnDescription, native.Return) {
	if ret, ok := f.trip(CallDescribeCol, native.HandleStmt, stmt); ok {
		return native.ColumnDescription{}, ret
	}
	return f.API.DescribeCol(stmt, col)
}

func (f *Faults) RowCount(stmt native.Handle) (int64, native.Return) {
	if ret, ok := f.trip(CallRowCount, native.HandleStmt, stmt); ok {
		return 0, ret
	}
	return f.API.RowCount(stmt)
}

func (f *Faults) Fetch(stmt native.Handle) native.Return {
	if ret, ok := f.trip(CallFetch, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.Fetch(stmt)
}

func (f *Faults) GetData(stmt native.Handle, col uint16, target native.CType, buf []byte) (int64, native.Return) {
	if ret, ok := f.trip(CallGetData, native.HandleStmt, stmt); ok {
		return 0, ret
	}
	return f.API.GetData(stmt, col, target, buf)
}

func (f *Faults) FreeStmt(stmt native.Handle, opt native.FreeStmtOption) native.Return {
	if ret, ok := f.trip(CallFreeStmt, native.HandleStmt, stmt); ok {
		return ret
	}
	return f.API.FreeStmt(stmt, opt)
}
