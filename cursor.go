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

import "context"

// Cursor keeps the most recent statement run through it and reads rows
// from it. Running another statement closes the previous one.
type Cursor struct {
	conn *Conn
	stmt *Stmt
}

func (c *Cursor) replace(stmt *Stmt) {
	if c.stmt != nil {
		c.stmt.Close()
	}
	c.stmt = stmt
}

// Execute runs sql directly.
func (c *Cursor) Execute(ctx context.Context, sql string) error {
	stmt, err := c.conn.Execute(ctx, sql)
	if err != nil {
		return err
	}
	c.replace(stmt)
	return nil
}

// ExecuteWithParams prepares sql, binds params by position and executes.
func (c *Cursor) ExecuteWithParams(ctx context.Context, sql string, params ...Param) error {
	stmt, err := c.conn.Prepare(ctx, sql)
	if err != nil {
		return err
	}
	if err := stmt.BindAll(params...); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Execute(ctx); err != nil {
		stmt.Close()
		return err
	}
	c.replace(stmt)
	return nil
}

// FetchOne reads the next row of the current statement.
func (c *Cursor) FetchOne() (Row, bool, error) {
	if c.stmt == nil {
		return nil, false, errorf(KindInvalidState, "cursor has not executed a statement")
	}
	return c.stmt.Fetch()
}

// FetchAll reads the remaining rows of the current statement.
func (c *Cursor) FetchAll() ([]Row, error) {
	if c.stmt == nil {
		return nil, errorf(KindInvalidState, "cursor has not executed a statement")
	}
	return c.stmt.FetchAll()
}

// Description describes the columns of the current statement.
func (c *Cursor) Description() ([]ColumnMetadata, error) {
	if c.stmt == nil {
		return nil, errorf(KindInvalidState, "cursor has not executed a statement")
	}
	return c.stmt.DescribeColumns()
}

// Close closes the current statement, if any.
func (c *Cursor) Close() error {
	c.replace(nil)
	return nil
}
