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

//go:build cgo && ifcli

package cli

// #cgo LDFLAGS: -lifcli
// #include <stdlib.h>
// #include <string.h>
// #include <infxcli.h>
//
// static SQLRETURN setODBC3(SQLHENV env) {
//     return SQLSetEnvAttr(env, SQL_ATTR_ODBC_VERSION, (SQLPOINTER)SQL_OV_ODBC3, 0);
// }
//
import "C"
import (
	"math"
	"sync"
	"unsafe"

	"github.com/berrytern/ifx/internal/arena"
	"github.com/berrytern/ifx/native"
)

// Available reports whether the native library is linked in.
const Available = true

const (
	diagMessageLen = 1024
	columnNameLen  = 256
)

// paramBuffer is C memory handed to SQLBindParameter. The driver reads it
// at execute time, so it lives until the ordinal is re-bound, the
// parameters are reset or the statement is freed.
type paramBuffer struct {
	value     unsafe.Pointer
	indicator *C.SQLLEN
}

func (p *paramBuffer) free() {
	C.free(p.value)
	if p.indicator != nil {
		C.free(unsafe.Pointer(p.indicator))
	}
}

type binding struct {
	cfg     config
	handles *arena.Arena[C.SQLHANDLE]

	mu     sync.Mutex
	params map[native.Handle]map[uint16]*paramBuffer
	// stmts are the statement handles of each connection handle;
	// SQLDisconnect frees them on the driver side.
	stmts map[native.Handle]map[native.Handle]struct{}
}

var _ native.API = (*binding)(nil)

func open(cfg config) (native.API, error) {
	return &binding{
		cfg:     cfg,
		handles: arena.New[C.SQLHANDLE](),
		params:  make(map[native.Handle]map[uint16]*paramBuffer),
		stmts:   make(map[native.Handle]map[native.Handle]struct{}),
	}, nil
}

func rc(r C.SQLRETURN) native.Return { return native.Return(r) }

func (b *binding) get(h native.Handle) (C.SQLHANDLE, bool) {
	return b.handles.Get(uint64(h))
}

func (b *binding) freeParams(stmt native.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeParamsLocked(stmt)
}

func (b *binding) freeParamsLocked(stmt native.Handle) {
	for _, p := range b.params[stmt] {
		p.free()
	}
	delete(b.params, stmt)
}

// cstr copies s into C memory. The caller frees it.
func cstr(s string) (*C.SQLCHAR, C.SQLINTEGER) {
	return (*C.SQLCHAR)(unsafe.Pointer(C.CString(s))), C.SQLINTEGER(len(s))
}

// smallLen is a string length for SQLSMALLINT arguments. Longer strings
// are passed NUL-terminated.
func smallLen(s string) C.SQLSMALLINT {
	if len(s) > math.MaxInt16 {
		return C.SQL_NTS
	}
	return C.SQLSMALLINT(len(s))
}

func (b *binding) AllocHandle(typ native.HandleType, parent native.Handle) (native.Handle, native.Return) {
	var in C.SQLHANDLE
	if parent != native.NullHandle {
		p, ok := b.get(parent)
		if !ok {
			return native.NullHandle, native.InvalidHandle
		}
		in = p
	}
	var out C.SQLHANDLE
	ret := rc(C.SQLAllocHandle(C.SQLSMALLINT(typ), in, &out))
	if !ret.Succeeded() {
		return native.NullHandle, ret
	}
	if typ == native.HandleEnv {
		if r := rc(C.setODBC3(C.SQLHENV(out))); !r.Succeeded() {
			C.SQLFreeHandle(C.SQL_HANDLE_ENV, out)
			return native.NullHandle, r
		}
		b.cfg.logger.Debug("allocated ODBC 3 environment")
	}
	h := native.Handle(b.handles.Insert(out))
	if typ == native.HandleStmt {
		b.mu.Lock()
		if b.stmts[parent] == nil {
			b.stmts[parent] = make(map[native.Handle]struct{})
		}
		b.stmts[parent][h] = struct{}{}
		b.mu.Unlock()
	}
	return h, ret
}

func (b *binding) FreeHandle(typ native.HandleType, h native.Handle) native.Return {
	ch, ok := b.get(h)
	if !ok {
		return native.InvalidHandle
	}
	ret := rc(C.SQLFreeHandle(C.SQLSMALLINT(typ), ch))
	if ret.Succeeded() {
		b.handles.Remove(uint64(h))
		b.mu.Lock()
		switch typ {
		case native.HandleStmt:
			b.freeParamsLocked(h)
			for _, stmts := range b.stmts {
				delete(stmts, h)
			}
		case native.HandleDbc:
			delete(b.stmts, h)
		}
		b.mu.Unlock()
	}
	return ret
}

func (b *binding) GetDiagRec(typ native.HandleType, h native.Handle, rec int16) (string, int32, string, native.Return) {
	ch, ok := b.get(h)
	if !ok {
		return "", 0, "", native.InvalidHandle
	}
	var (
		state     [6]C.SQLCHAR
		nativeErr C.SQLINTEGER
		msg       [diagMessageLen]C.SQLCHAR
		msgLen    C.SQLSMALLINT
	)
	ret := rc(C.SQLGetDiagRec(C.SQLSMALLINT(typ), ch, C.SQLSMALLINT(rec),
		&state[0], &nativeErr, &msg[0], diagMessageLen, &msgLen))
	if !ret.Succeeded() {
		return "", 0, "", ret
	}
	return C.GoString((*C.char)(unsafe.Pointer(&state[0]))),
		int32(nativeErr),
		C.GoString((*C.char)(unsafe.Pointer(&msg[0]))),
		ret
}

func (b *binding) DriverConnect(dbc native.Handle, connStr string, outLen int) (string, native.Return) {
	ch, ok := b.get(dbc)
	if !ok {
		return "", native.InvalidHandle
	}
	in, _ := cstr(connStr)
	defer C.free(unsafe.Pointer(in))
	outLen = min(max(outLen, 1), math.MaxInt16)
	out := (*C.SQLCHAR)(C.malloc(C.size_t(outLen)))
	defer C.free(unsafe.Pointer(out))

	var written C.SQLSMALLINT
	ret := rc(C.SQLDriverConnect(C.SQLHDBC(ch), nil, in, smallLen(connStr),
		out, C.SQLSMALLINT(outLen), &written, C.SQL_DRIVER_NOPROMPT))
	if !ret.Succeeded() {
		return "", ret
	}
	return C.GoString((*C.char)(unsafe.Pointer(out))), ret
}

func (b *binding) Connect(dbc native.Handle, server, user, password string) native.Return {
	ch, ok := b.get(dbc)
	if !ok {
		return native.InvalidHandle
	}
	s, _ := cstr(server)
	defer C.free(unsafe.Pointer(s))
	u, _ := cstr(user)
	defer C.free(unsafe.Pointer(u))
	p, _ := cstr(password)
	defer C.free(unsafe.Pointer(p))
	return rc(C.SQLConnect(C.SQLHDBC(ch), s, smallLen(server), u, smallLen(user), p, smallLen(password)))
}

func (b *binding) Disconnect(dbc native.Handle) native.Return {
	ch, ok := b.get(dbc)
	if !ok {
		return native.InvalidHandle
	}
	ret := rc(C.SQLDisconnect(C.SQLHDBC(ch)))
	if ret.Succeeded() {
		b.mu.Lock()
		for stmt := range b.stmts[dbc] {
			b.handles.Remove(uint64(stmt))
			b.freeParamsLocked(stmt)
		}
		delete(b.stmts, dbc)
		b.mu.Unlock()
	}
	return ret
}

func (b *binding) Prepare(stmt native.Handle, sql string) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	text, n := cstr(sql)
	defer C.free(unsafe.Pointer(text))
	return rc(C.SQLPrepare(C.SQLHSTMT(ch), text, n))
}

func (b *binding) BindParameter(stmt native.Handle, bind native.Binding) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	p := &paramBuffer{value: C.malloc(C.size_t(max(len(bind.Value), 1)))}
	if len(bind.Value) > 0 {
		C.memcpy(p.value, unsafe.Pointer(&bind.Value[0]), C.size_t(len(bind.Value)))
	}
	if bind.Indicator != nil {
		p.indicator = (*C.SQLLEN)(C.malloc(C.size_t(unsafe.Sizeof(C.SQLLEN(0)))))
		*p.indicator = C.SQLLEN(*bind.Indicator)
	}

	ret := rc(C.SQLBindParameter(C.SQLHSTMT(ch),
		C.SQLUSMALLINT(bind.Ordinal),
		C.SQLSMALLINT(bind.IOType),
		C.SQLSMALLINT(bind.ValueType),
		C.SQLSMALLINT(bind.ParamType),
		C.SQLULEN(bind.ColumnSize),
		C.SQLSMALLINT(bind.DecimalDigits),
		C.SQLPOINTER(p.value),
		C.SQLLEN(len(bind.Value)),
		p.indicator))
	if !ret.Succeeded() {
		p.free()
		return ret
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bound := b.params[stmt]
	if bound == nil {
		bound = make(map[uint16]*paramBuffer)
		b.params[stmt] = bound
	}
	if old, ok := bound[bind.Ordinal]; ok {
		old.free()
	}
	bound[bind.Ordinal] = p
	return ret
}

func (b *binding) Execute(stmt native.Handle) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	return rc(C.SQLExecute(C.SQLHSTMT(ch)))
}

func (b *binding) ExecDirect(stmt native.Handle, sql string) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	text, n := cstr(sql)
	defer C.free(unsafe.Pointer(text))
	return rc(C.SQLExecDirect(C.SQLHSTMT(ch), text, n))
}

func (b *binding) NumResultCols(stmt native.Handle) (int16, native.Return) {
	ch, ok := b.get(stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	var n C.SQLSMALLINT
	ret := rc(C.SQLNumResultCols(C.SQLHSTMT(ch), &n))
	return int16(n), ret
}

func (b *binding) DescribeCol(stmt native.Handle, col uint16) (native.ColumnDescription, native.Return) {
	ch, ok := b.get(stmt)
	if !ok {
		return native.ColumnDescription{}, native.InvalidHandle
	}
	var (
		name     [columnNameLen]C.SQLCHAR
		nameLen  C.SQLSMALLINT
		dataType C.SQLSMALLINT
		size     C.SQLULEN
		digits   C.SQLSMALLINT
		nullable C.SQLSMALLINT
	)
	ret := rc(C.SQLDescribeCol(C.SQLHSTMT(ch), C.SQLUSMALLINT(col),
		&name[0], columnNameLen, &nameLen, &dataType, &size, &digits, &nullable))
	if !ret.Succeeded() {
		return native.ColumnDescription{}, ret
	}
	return native.ColumnDescription{
		Name:          C.GoString((*C.char)(unsafe.Pointer(&name[0]))),
		DataType:      native.SQLType(dataType),
		ColumnSize:    uint64(size),
		DecimalDigits: int16(digits),
		Nullable:      native.Nullability(nullable),
	}, ret
}

func (b *binding) RowCount(stmt native.Handle) (int64, native.Return) {
	ch, ok := b.get(stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	var n C.SQLLEN
	ret := rc(C.SQLRowCount(C.SQLHSTMT(ch), &n))
	return int64(n), ret
}

func (b *binding) Fetch(stmt native.Handle) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	return rc(C.SQLFetch(C.SQLHSTMT(ch)))
}

func (b *binding) GetData(stmt native.Handle, col uint16, target native.CType, buf []byte) (int64, native.Return) {
	ch, ok := b.get(stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	if len(buf) == 0 {
		return 0, native.Error
	}
	var ind C.SQLLEN
	ret := rc(C.SQLGetData(C.SQLHSTMT(ch), C.SQLUSMALLINT(col), C.SQLSMALLINT(target),
		C.SQLPOINTER(unsafe.Pointer(&buf[0])), C.SQLLEN(len(buf)), &ind))
	return int64(ind), ret
}

func (b *binding) FreeStmt(stmt native.Handle, opt native.FreeStmtOption) native.Return {
	ch, ok := b.get(stmt)
	if !ok {
		return native.InvalidHandle
	}
	ret := rc(C.SQLFreeStmt(C.SQLHSTMT(ch), C.SQLUSMALLINT(opt)))
	if ret.Succeeded() && opt == native.ResetParams {
		b.freeParams(stmt)
	}
	return ret
}
