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
	"bytes"
	"context"
	"log/slog"
	"math"

	"github.com/berrytern/ifx/native"
)

// NullToken is the Row value of a NULL column.
const NullToken = "NULL"

// Row is one fetched row, each value in its SQL_C_CHAR form and NULL
// rendered as NullToken.
type Row []string

// Cell is a column value that keeps NULL apart from the string "NULL".
type Cell struct {
	Value string
	Null  bool
}

// String returns the Row form of c.
func (c Cell) String() string {
	if c.Null {
		return NullToken
	}
	return c.Value
}

// ColumnMetadata describes one result column.
type ColumnMetadata struct {
	Ordinal       int
	Name          string
	DataType      native.SQLType
	Size          uint64
	DecimalDigits int16
	Nullable      native.Nullability
}

// Stmt is a statement handle with the SQL it was created for.
type Stmt struct {
	api  native.API
	opts *options
	conn *Conn
	g    *guard
	sql  string

	// numCols is the column count of the current result set, -1 when
	// unknown.
	numCols   int
	hasResult bool
	done      bool
	buf       []byte
}

// SQL returns the statement text.
func (s *Stmt) SQL() string { return s.sql }

func (s *Stmt) checkOpen() error {
	if !s.g.live() {
		return errorf(KindInvalidState, "statement is closed")
	}
	return nil
}

func (s *Stmt) fail(kind Kind, op string, ret native.Return, msg string) *Error {
	return nativeErr(s.api, kind, native.HandleStmt, s.g.handle(), op, ret, msg)
}

// Bind binds p to the 1-based ordinal. Binding an ordinal again replaces
// the earlier value.
func (s *Stmt) Bind(ordinal int, p Param) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if ordinal < 1 || ordinal > math.MaxUint16 {
		return &Error{Kind: KindParameterBinding, Ordinal: ordinal, Msg: "ordinal out of range"}
	}
	b, err := p.binding(uint16(ordinal))
	if err != nil {
		return err
	}
	if ret := s.api.BindParameter(s.g.handle(), b); !ret.Succeeded() {
		e := s.fail(KindParameterBinding, "SQLBindParameter", ret, "cannot bind "+p.Kind().String()+" parameter")
		e.Ordinal = ordinal
		return e
	}
	return nil
}

// BindAll binds params to ordinals 1..len(params).
func (s *Stmt) BindAll(params ...Param) error {
	for i, p := range params {
		if err := s.Bind(i+1, p); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the prepared statement with the current bindings. A cursor
// left open by an earlier execution is closed first.
func (s *Stmt) Execute(ctx context.Context) (err error) {
	ctx, span := s.opts.startSpan(ctx, "ifx.Stmt.Execute", s.sql)
	defer func() { endSpan(span, err) }()

	if err = s.checkOpen(); err != nil {
		return err
	}
	if err = ctxErr(ctx, KindSQLExecution); err != nil {
		return err
	}
	if s.hasResult {
		s.closeCursor()
	}
	if ret := s.api.Execute(s.g.handle()); !ret.Succeeded() {
		return s.fail(KindSQLExecution, "SQLExecute", ret, "cannot execute statement")
	}
	s.executed()
	return nil
}

// executed resets the fetch state for a new result set and caches its
// column count. Without a count Fetch falls back to walking columns
// until the driver reports the end.
func (s *Stmt) executed() {
	s.hasResult, s.done, s.numCols = true, false, -1
	n, ret := s.api.NumResultCols(s.g.handle())
	if ret.Succeeded() {
		s.numCols = int(n)
		return
	}
	s.opts.logger.Debug("column count unavailable",
		slog.String("sql", s.sql),
		slog.String("return", ret.String()),
		slog.String("diagnostic", diagnose(s.api, native.HandleStmt, s.g.handle()).String()))
}

func (s *Stmt) closeCursor() {
	if ret := s.api.FreeStmt(s.g.handle(), native.CloseCursor); !ret.Succeeded() {
		s.opts.logger.Debug("closing cursor failed", slog.String("return", ret.String()))
	}
	s.hasResult = false
}

// Fetch reads the next row. At the end of the result set it returns
// ok == false and a nil error, and keeps doing so on later calls.
func (s *Stmt) Fetch() (Row, bool, error) {
	cells, ok, err := s.FetchCells()
	if !ok || err != nil {
		return nil, ok, err
	}
	row := make(Row, len(cells))
	for i, c := range cells {
		row[i] = c.String()
	}
	return row, true, nil
}

// FetchCells is Fetch with NULL kept distinct from the string "NULL".
func (s *Stmt) FetchCells() ([]Cell, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	if s.done {
		return nil, false, nil
	}
	if s.hasResult && s.numCols == 0 {
		s.done = true
		return nil, false, nil
	}

	switch ret := s.api.Fetch(s.g.handle()); {
	case ret == native.NoData:
		s.done = true
		return nil, false, nil
	case !ret.Succeeded():
		return nil, false, s.fail(KindDataFetch, "SQLFetch", ret, "cannot fetch row")
	}

	limit, probing := s.numCols, false
	if limit < 0 {
		limit, probing = s.opts.maxColumns, true
	}
	cells := make([]Cell, 0, min(limit, 64))
	for col := 1; col <= limit; col++ {
		c, end, err := s.getData(uint16(col), probing)
		if err != nil {
			return nil, false, err
		}
		if end {
			break
		}
		cells = append(cells, c)
	}
	return cells, true, nil
}

// getData reads one column, in several SQLGetData calls when the value
// does not fit the buffer. end reports that col is past the last column.
func (s *Stmt) getData(col uint16, probing bool) (c Cell, end bool, err error) {
	h := s.g.handle()
	capacity := len(s.buf) - 1
	var data []byte
	for first := true; ; first = false {
		ind, ret := s.api.GetData(h, col, native.CChar, s.buf)
		switch {
		case ret == native.NoData:
			// nothing left: either past the last column or the previous
			// piece was the final one
			return Cell{Value: string(data)}, first, nil

		case !ret.Succeeded():
			e := s.fail(KindDataFetch, "SQLGetData", ret, "cannot read column")
			e.Ordinal = int(col)
			if first && probing && invalidDescriptorIndex(e.Diagnostic) {
				return Cell{}, true, nil
			}
			return Cell{}, false, e

		case ind == native.NullData:
			return Cell{Null: true}, false, nil
		}

		truncated := ind == native.NoTotal || ind > int64(capacity)
		n := capacity
		if !truncated {
			n = int(ind)
		} else if i := bytes.IndexByte(s.buf, 0); i >= 0 && i < n {
			n = i
		}
		data = append(data, s.buf[:n]...)
		if ret == native.Success || !truncated {
			return Cell{Value: string(data)}, false, nil
		}
	}
}

// FetchAll reads the remaining rows.
func (s *Stmt) FetchAll() ([]Row, error) {
	var rows []Row
	for {
		row, ok, err := s.Fetch()
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// DescribeColumns describes every column of the current result set.
func (s *Stmt) DescribeColumns() ([]ColumnMetadata, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	h := s.g.handle()
	n, ret := s.api.NumResultCols(h)
	if !ret.Succeeded() {
		return nil, s.fail(KindDescribeColumns, "SQLNumResultCols", ret, "cannot count columns")
	}
	cols := make([]ColumnMetadata, 0, n)
	for i := 1; i <= int(n); i++ {
		d, ret := s.api.DescribeCol(h, uint16(i))
		if !ret.Succeeded() {
			e := s.fail(KindDescribeColumns, "SQLDescribeCol", ret, "cannot describe column")
			e.Ordinal = i
			return nil, e
		}
		cols = append(cols, ColumnMetadata{
			Ordinal:       i,
			Name:          d.Name,
			DataType:      d.DataType,
			Size:          d.ColumnSize,
			DecimalDigits: d.DecimalDigits,
			Nullable:      d.Nullable,
		})
	}
	return cols, nil
}

// RowCount is the number of rows affected by the last execution, -1 when
// the driver does not know.
func (s *Stmt) RowCount() (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, ret := s.api.RowCount(s.g.handle())
	if !ret.Succeeded() {
		return 0, s.fail(KindSQLExecution, "SQLRowCount", ret, "cannot read row count")
	}
	return n, nil
}

// Reset closes the open cursor and drops every binding, leaving the
// statement prepared for another execution.
func (s *Stmt) Reset() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	h := s.g.handle()
	for _, opt := range []native.FreeStmtOption{native.CloseCursor, native.ResetParams} {
		if ret := s.api.FreeStmt(h, opt); !ret.Succeeded() {
			return s.fail(KindSQLExecution, "SQLFreeStmt", ret, "cannot reset statement")
		}
	}
	s.hasResult, s.done, s.numCols = false, false, -1
	return nil
}

// Query resets s, binds params, executes and reads every row.
func (s *Stmt) Query(ctx context.Context, params ...Param) ([]Row, error) {
	if err := s.Reset(); err != nil {
		return nil, err
	}
	if err := s.BindAll(params...); err != nil {
		return nil, err
	}
	if err := s.Execute(ctx); err != nil {
		return nil, err
	}
	return s.FetchAll()
}

// Close frees the statement handle. Later calls on s fail with
// ErrInvalidState. Close is idempotent and always returns nil.
func (s *Stmt) Close() error {
	s.conn.res.untrack(s.g)
	s.g.release()
	return nil
}
