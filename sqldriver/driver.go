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

package sqldriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"time"

	"cloud.google.com/go/civil"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

// ErrTxNotSupported is returned by Begin and BeginTx.
var ErrTxNotSupported = errors.New("sqldriver: transactions are not supported")

type connector struct {
	drv Driver
	dsn string
}

// NewConnector returns a connector for sql.OpenDB that opens connections
// to dsn through api.
func NewConnector(api native.API, dsn string, opts ...ifx.Option) driver.Connector {
	return &connector{drv: Driver{API: api, Options: opts}, dsn: dsn}
}

// Connect allocates a new connection and connects it. ctx bounds the
// connect call only.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cn, err := ifx.New(c.drv.API, c.drv.Options...)
	if err != nil {
		return nil, err
	}
	if err := cn.ConnectWithString(ctx, c.dsn); err != nil {
		cn.Close()
		return nil, err
	}
	return &conn{c: cn}, nil
}

// Driver returns the underlying Driver of the connector,
// mainly to maintain compatibility with the Driver method on sql.DB
func (c *connector) Driver() driver.Driver { return c.drv }

// Driver opens connections through API.
type Driver struct {
	API     native.API
	Options []ifx.Option
}

// Open returns a new connection to the database. The name is the
// connection string.
//
// The returned connection is only used by one goroutine at a time.
func (d Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector expects the same format as driver.Open
func (d Driver) OpenConnector(name string) (driver.Connector, error) {
	if d.API == nil {
		return nil, &ifx.Error{Kind: ifx.KindInvalidArgument, Msg: "sqldriver: Driver has no native API"}
	}
	return &connector{drv: d, dsn: name}, nil
}

// conn is a connection to a database. It is not used concurrently by
// multiple goroutines.
type conn struct {
	c *ifx.Conn
}

// Close releases the connection with every statement still open on it.
func (c *conn) Close() error {
	return c.c.Close()
}

// IsValid is consulted before a connection is returned to the pool.
func (c *conn) IsValid() bool {
	return c.c.Connected()
}

func (c *conn) Begin() (driver.Tx, error) {
	return nil, ErrTxNotSupported
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return nil, ErrTxNotSupported
}

// Prepare returns a prepared statement, bound to this connection.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a prepared statement, bound to this connection.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.c.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{s: s}, nil
}

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	return checkNamedValue(nv)
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.c.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	st := &stmt{s: s}
	r, err := st.query(ctx, args)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	r.closeStmt = true
	return r, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s, err := c.c.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return (&stmt{s: s}).ExecContext(ctx, args)
}

type stmt struct {
	s *ifx.Stmt
}

func (s *stmt) Close() error {
	return s.s.Close()
}

// NumInput returns -1: the statement text is not parsed for markers.
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) CheckNamedValue(nv *driver.NamedValue) error {
	return checkNamedValue(nv)
}

// bind resets the statement and binds args, which CheckNamedValue has
// already turned into ifx.Param values.
func (s *stmt) bind(args []driver.NamedValue) error {
	if err := s.s.Reset(); err != nil {
		return err
	}
	for _, a := range args {
		p, ok := a.Value.(ifx.Param)
		if !ok {
			var err error
			if p, err = toParam(a.Value); err != nil {
				return paramErr(a.Ordinal, err)
			}
		}
		if err := s.s.Bind(a.Ordinal, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.bind(args); err != nil {
		return nil, err
	}
	if err := s.s.Execute(ctx); err != nil {
		return nil, err
	}
	n, err := s.s.RowCount()
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(n), nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.query(ctx, args)
}

func (s *stmt) query(ctx context.Context, args []driver.NamedValue) (*rows, error) {
	if err := s.bind(args); err != nil {
		return nil, err
	}
	if err := s.s.Execute(ctx); err != nil {
		return nil, err
	}
	cols, err := s.s.DescribeColumns()
	if err != nil {
		return nil, err
	}
	return &rows{s: s.s, cols: cols}, nil
}

func checkNamedValue(nv *driver.NamedValue) error {
	if nv.Name != "" {
		return paramErr(nv.Ordinal, fmt.Errorf("named parameter %q: only positional markers are supported", nv.Name))
	}
	p, err := toParam(nv.Value)
	if err != nil {
		return paramErr(nv.Ordinal, err)
	}
	nv.Value = p
	return nil
}

func paramErr(ordinal int, err error) error {
	return &ifx.Error{Kind: ifx.KindParameterBinding, Ordinal: ordinal, Msg: "cannot convert argument", Err: err}
}

func toInt(v int64) (ifx.Param, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return ifx.Param{}, fmt.Errorf("integer %d does not fit in 32 bits", v)
	}
	return ifx.Int(int32(v)), nil
}

// toParam converts a database/sql argument to a parameter.
func toParam(v any) (ifx.Param, error) {
	switch v := v.(type) {
	case ifx.Param:
		return v, nil
	case int:
		return toInt(int64(v))
	case int8:
		return ifx.Int(int32(v)), nil
	case int16:
		return ifx.Int(int32(v)), nil
	case int32:
		return ifx.Int(v), nil
	case int64:
		return toInt(v)
	case uint8:
		return ifx.Int(int32(v)), nil
	case uint16:
		return ifx.Int(int32(v)), nil
	case uint32:
		return toInt(int64(v))
	case uint:
		if uint64(v) > math.MaxInt32 {
			return ifx.Param{}, fmt.Errorf("integer %d does not fit in 32 bits", v)
		}
		return ifx.Int(int32(v)), nil
	case uint64:
		if v > math.MaxInt32 {
			return ifx.Param{}, fmt.Errorf("integer %d does not fit in 32 bits", v)
		}
		return ifx.Int(int32(v)), nil
	case string:
		return ifx.Text(v), nil
	case []byte:
		return ifx.Text(string(v)), nil
	case civil.Date:
		return ifx.Date(v), nil
	case time.Time:
		return ifx.Date(civil.DateOf(v)), nil
	case nil:
		return ifx.Param{}, errors.New("NULL parameters are not supported")
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return ifx.Param{}, err
		}
		if _, again := dv.(driver.Valuer); again {
			return ifx.Param{}, fmt.Errorf("Valuer %T returned another Valuer", v)
		}
		return toParam(dv)
	}
	return ifx.Param{}, fmt.Errorf("unsupported argument type %T", v)
}

type rows struct {
	s         *ifx.Stmt
	cols      []ifx.ColumnMetadata
	closeStmt bool
}

func (r *rows) Columns() []string {
	out := make([]string, len(r.cols))
	for i, c := range r.cols {
		out[i] = c.Name
	}
	return out
}

// Close closes the cursor, and the statement too when it was created
// for this result only.
func (r *rows) Close() error {
	if r.closeStmt {
		return r.s.Close()
	}
	return r.s.Reset()
}

func (r *rows) Next(dest []driver.Value) error {
	cells, ok, err := r.s.FetchCells()
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	for i := range dest {
		if i >= len(cells) || cells[i].Null {
			dest[i] = nil
			continue
		}
		dest[i] = cells[i].Value
	}
	return nil
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.cols[index].DataType.String()
}

func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	switch r.cols[index].Nullable {
	case native.Nullable:
		return true, true
	case native.NoNulls:
		return false, true
	}
	return false, false
}

func (r *rows) ColumnTypeLength(index int) (length int64, ok bool) {
	switch r.cols[index].DataType {
	case native.TypeChar, native.TypeVarchar, native.TypeLongVarchar, native.TypeBinary:
		return int64(r.cols[index].Size), true
	}
	return 0, false
}

func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	switch c := r.cols[index]; c.DataType {
	case native.TypeDecimal, native.TypeNumeric:
		return int64(c.Size), int64(c.DecimalDigits), true
	}
	return 0, 0, false
}

// ColumnTypeScanType is string for every column: values are fetched as
// SQL_C_CHAR.
func (r *rows) ColumnTypeScanType(int) reflect.Type {
	return reflect.TypeOf("")
}
