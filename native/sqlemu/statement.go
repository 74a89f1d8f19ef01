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
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/berrytern/ifx/native"
)

type boundParam struct {
	valueType native.CType
	value     []byte
	indicator *int64
}

type cell struct {
	data []byte
	null bool
	// read is the number of bytes already returned by GetData and done
	// is set once the whole value has been returned.
	read int
	done bool
}

type statement struct {
	dbc  native.Handle
	conn *connection

	sql      string
	prepared *sql.Stmt
	params   map[uint16]boundParam

	executed bool
	rows     *sql.Rows
	columns  []*sql.ColumnType
	current  []cell
	affected int64
}

func (s *statement) closeCursor() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	s.current = nil
}

func (s *statement) close() {
	s.closeCursor()
	if s.prepared != nil {
		_ = s.prepared.Close()
		s.prepared = nil
	}
}

func (e *Emulator) Prepare(stmt native.Handle, query string) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()
	return obj.prepare(query)
}

func (h *handle) prepare(query string) native.Return {
	s := h.stmt
	if s.rows != nil {
		return h.fail("24000", 0, msgPrefix+"Invalid cursor state")
	}
	if s.conn.sqlConn == nil {
		return h.fail("08003", 0, msgPrefix+"Connection not open")
	}
	rewritten := rewritePlaceholders(s.conn.engine, query)
	ps, err := s.conn.sqlConn.PrepareContext(context.Background(), rewritten)
	if err != nil {
		return h.fail("42000", -201, msgPrefix+"A syntax error has occurred. "+err.Error())
	}
	s.close()
	s.sql, s.prepared = query, ps
	s.executed, s.columns, s.affected = false, nil, -1
	return native.Success
}

func (e *Emulator) BindParameter(stmt native.Handle, b native.Binding) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()

	if b.Ordinal == 0 {
		return obj.fail(native.StateInvalidDescriptorIndex, 0, msgPrefix+native.MessageInvalidDescriptorIndex)
	}
	if b.IOType != native.ParamInput {
		return obj.fail("HY105", 0, msgPrefix+"Invalid parameter type")
	}
	switch b.ValueType {
	case native.CChar, native.CLong, native.CShort, native.CTypeDate:
	default:
		return obj.fail("HY003", 0, msgPrefix+"Invalid application buffer type")
	}

	p := boundParam{valueType: b.ValueType, value: bytes.Clone(b.Value)}
	if b.Indicator != nil {
		ind := *b.Indicator
		p.indicator = &ind
	}
	obj.stmt.params[b.Ordinal] = p
	return native.Success
}

// arg converts a bound buffer back into a Go value for database/sql.
func (p boundParam) arg() (any, error) {
	if p.indicator != nil && *p.indicator == native.NullData {
		return nil, nil
	}
	switch p.valueType {
	case native.CLong:
		v, err := native.DecodeLong(p.value)
		return int64(v), err
	case native.CShort:
		if len(p.value) != 2 {
			return nil, errors.New("SQLSMALLINT must be 2 bytes")
		}
		return int64(int16(binary.NativeEndian.Uint16(p.value))), nil
	case native.CTypeDate:
		d, err := native.DecodeDateStruct(p.value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case native.CChar:
		data := p.value
		switch {
		case p.indicator == nil, *p.indicator == native.NTS:
			if i := bytes.IndexByte(data, 0); i >= 0 {
				data = data[:i]
			}
		case *p.indicator >= 0:
			if int(*p.indicator) > len(data) {
				return nil, errors.New("indicator exceeds buffer length")
			}
			data = data[:*p.indicator]
		}
		return string(data), nil
	}
	return nil, errors.New("unsupported C type")
}

func (e *Emulator) Execute(stmt native.Handle) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()
	return obj.execute()
}

func (h *handle) execute() native.Return {
	s := h.stmt
	if s.prepared == nil {
		return h.fail("HY010", 0, msgPrefix+"Function sequence error")
	}
	if s.rows != nil {
		return h.fail("24000", 0, msgPrefix+"Invalid cursor state")
	}

	args := make([]any, 0, len(s.params))
	for i := 1; i <= len(s.params); i++ {
		p, ok := s.params[uint16(i)]
		if !ok {
			return h.fail("07002", 0, msgPrefix+"COUNT field incorrect")
		}
		v, err := p.arg()
		if err != nil {
			return h.fail("22018", 0, msgPrefix+"Invalid character value for cast specification: "+err.Error())
		}
		args = append(args, v)
	}

	ctx := context.Background()
	s.executed, s.columns, s.affected = false, nil, -1
	if returnsRows(s.sql) {
		rows, err := s.prepared.QueryContext(ctx, args...)
		if err != nil {
			return h.fail("HY000", -1, msgPrefix+err.Error())
		}
		cols, err := rows.ColumnTypes()
		if err != nil {
			_ = rows.Close()
			return h.fail("HY000", -1, msgPrefix+err.Error())
		}
		s.rows, s.columns = rows, cols
	} else {
		res, err := s.prepared.ExecContext(ctx, args...)
		if err != nil {
			return h.fail("HY000", -1, msgPrefix+err.Error())
		}
		if n, err := res.RowsAffected(); err == nil {
			s.affected = n
		}
	}
	s.executed = true
	return native.Success
}

func (e *Emulator) ExecDirect(stmt native.Handle, query string) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()
	if ret := obj.prepare(query); !ret.Succeeded() {
		return ret
	}
	return obj.execute()
}

func (e *Emulator) NumResultCols(stmt native.Handle) (int16, native.Return) {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	defer obj.mu.Unlock()
	if !obj.stmt.executed {
		return 0, obj.fail("HY010", 0, msgPrefix+"Function sequence error")
	}
	return int16(len(obj.stmt.columns)), native.Success
}

func (e *Emulator) DescribeCol(stmt native.Handle, col uint16) (native.ColumnDescription, native.Return) {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.ColumnDescription{}, native.InvalidHandle
	}
	defer obj.mu.Unlock()
	s := obj.stmt
	if !s.executed {
		return native.ColumnDescription{}, obj.fail("HY010", 0, msgPrefix+"Function sequence error")
	}
	if col == 0 || int(col) > len(s.columns) {
		return native.ColumnDescription{}, obj.fail(native.StateInvalidDescriptorIndex,
			native.NativeInvalidDescriptorIndex, msgPrefix+native.MessageInvalidDescriptorIndex+".")
	}
	return describe(s.columns[col-1]), native.Success
}

func (e *Emulator) RowCount(stmt native.Handle) (int64, native.Return) {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	defer obj.mu.Unlock()
	if !obj.stmt.executed {
		return 0, obj.fail("HY010", 0, msgPrefix+"Function sequence error")
	}
	return obj.stmt.affected, native.Success
}

func (e *Emulator) Fetch(stmt native.Handle) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()
	s := obj.stmt
	if s.rows == nil {
		return obj.fail("24000", 0, msgPrefix+"Invalid cursor state")
	}
	s.current = nil
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return obj.fail("HY000", -1, msgPrefix+err.Error())
		}
		return native.NoData
	}

	values := make([]any, len(s.columns))
	for i := range values {
		values[i] = new(any)
	}
	if err := s.rows.Scan(values...); err != nil {
		return obj.fail("HY000", -1, msgPrefix+err.Error())
	}
	s.current = make([]cell, len(values))
	for i, v := range values {
		data, null := render(*(v.(*any)))
		s.current[i] = cell{data: data, null: null}
	}
	return native.Success
}

func (e *Emulator) GetData(stmt native.Handle, col uint16, target native.CType, buf []byte) (int64, native.Return) {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	defer obj.mu.Unlock()
	s := obj.stmt
	if s.current == nil {
		return 0, obj.fail("24000", 0, msgPrefix+"Invalid cursor state")
	}
	if col == 0 || int(col) > len(s.current) {
		return 0, obj.fail(native.StateInvalidDescriptorIndex,
			native.NativeInvalidDescriptorIndex, msgPrefix+native.MessageInvalidDescriptorIndex+".")
	}
	if target != native.CChar {
		return 0, obj.fail("HY003", 0, msgPrefix+"Invalid application buffer type")
	}
	if len(buf) == 0 {
		return 0, obj.fail("HY090", 0, msgPrefix+"Invalid string or buffer length")
	}

	c := &s.current[col-1]
	if c.done {
		return 0, native.NoData
	}
	if c.null {
		c.done = true
		return native.NullData, native.Success
	}

	remaining := c.data[c.read:]
	n := copy(buf[:len(buf)-1], remaining)
	buf[n] = 0
	c.read += n
	if n < len(remaining) {
		return int64(len(remaining)), obj.warn("01004", msgPrefix+"String data, right truncated")
	}
	c.done = true
	return int64(len(remaining)), native.Success
}

func (e *Emulator) FreeStmt(stmt native.Handle, opt native.FreeStmtOption) native.Return {
	obj, ok := e.lookup(native.HandleStmt, stmt)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()
	switch opt {
	case native.CloseCursor:
		obj.stmt.closeCursor()
	case native.Unbind:
	case native.ResetParams:
		clear(obj.stmt.params)
	default:
		return obj.fail("HY092", 0, msgPrefix+"Invalid attribute/option identifier "+strconv.Itoa(int(opt)))
	}
	return native.Success
}
