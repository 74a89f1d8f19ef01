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

package sqldriver_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native/sqlemu"
	"github.com/berrytern/ifx/sqldriver"
)

const memoryDSN = "DRIVER=sqlite;DATABASE=:memory:"

func Example() {
	db := sql.OpenDB(sqldriver.NewConnector(sqlemu.New(), memoryDSN))
	defer db.Close()

	rows, err := db.Query("SELECT ? AS answer", 42)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			panic(err)
		}
	}()

	colNames, err := rows.Columns()
	if err != nil {
		panic(err)
	}
	fmt.Println(colNames)

	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			panic(err)
		}
		fmt.Println(v)
	}

	// Output:
	// [answer]
	// 42
}

type item struct {
	ID    int            `db:"id"`
	Name  sql.NullString `db:"name"`
	Added string         `db:"added"`
}

type DriverSuite struct {
	suite.Suite

	emu *sqlemu.Emulator
	db  *sqlx.DB
}

func (s *DriverSuite) SetupTest() {
	s.emu = sqlemu.New()
	db := sql.OpenDB(sqldriver.NewConnector(s.emu, memoryDSN))
	// each connection owns its own in-memory database
	db.SetMaxOpenConns(1)
	s.db = sqlx.NewDb(db, "ifx")

	s.db.MustExec("CREATE TABLE items (id INTEGER, name VARCHAR(20), added DATE)")
}

func (s *DriverSuite) TearDownTest() {
	s.NoError(s.db.Close())
	s.Zero(s.emu.Live(), "leaked handles: %v", s.emu.LiveByType())
}

func (s *DriverSuite) TestExecRowsAffected() {
	res, err := s.db.Exec("INSERT INTO items VALUES (?, ?, ?), (?, ?, ?)",
		1, "a", civil.Date{Year: 2024, Month: 9, Day: 7},
		2, []byte("b"), time.Date(2024, 9, 8, 13, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	n, err := res.RowsAffected()
	s.Require().NoError(err)
	s.EqualValues(2, n)

	_, err = res.LastInsertId()
	s.Error(err)
}

func (s *DriverSuite) TestSelectIntoStructs() {
	s.db.MustExec("INSERT INTO items VALUES (1, 'a', '2024-09-07'), (2, NULL, '2024-09-08'), (3, 'c', '2024-09-09')")

	var items []item
	s.Require().NoError(s.db.Select(&items, "SELECT id, name, added FROM items WHERE id > ? ORDER BY id", 1))
	s.Equal([]item{
		{ID: 2, Added: "2024-09-08"},
		{ID: 3, Name: sql.NullString{String: "c", Valid: true}, Added: "2024-09-09"},
	}, items)

	var one item
	s.Require().NoError(s.db.Get(&one, "SELECT id, name, added FROM items WHERE added = ?", civil.Date{Year: 2024, Month: 9, Day: 7}))
	s.Equal("a", one.Name.String)
}

func (s *DriverSuite) TestPreparedStatementReuse() {
	stmt, err := s.db.Preparex("SELECT ? * 2")
	s.Require().NoError(err)
	defer stmt.Close()

	for _, v := range []int{1, 21, -4} {
		var got int
		s.Require().NoError(stmt.Get(&got, v))
		s.Equal(v*2, got)
	}
}

func (s *DriverSuite) TestColumnTypes() {
	s.db.MustExec("INSERT INTO items VALUES (1, 'a', '2024-09-07')")
	rows, err := s.db.Query("SELECT id, name FROM items")
	s.Require().NoError(err)
	defer rows.Close()

	types, err := rows.ColumnTypes()
	s.Require().NoError(err)
	s.Require().Len(types, 2)
	s.Equal("id", types[0].Name())
	s.Equal("INTEGER", types[0].DatabaseTypeName())
	s.Equal("VARCHAR", types[1].DatabaseTypeName())
	s.Equal("string", types[1].ScanType().Kind().String())
}

func (s *DriverSuite) TestRejectedArguments() {
	cases := map[string]any{
		"null":     nil,
		"overflow": int64(math.MaxInt32) + 1,
		"float":    1.5,
		"nul byte": "a\x00b",
	}
	for name, arg := range cases {
		s.Run(name, func() {
			_, err := s.db.Exec("INSERT INTO items (id) VALUES (?)", arg)
			s.ErrorIs(err, ifx.ErrParameterBinding)
		})
	}

	_, err := s.db.Exec("INSERT INTO items (id) VALUES (?)", sql.Named("id", 1))
	s.ErrorIs(err, ifx.ErrParameterBinding)
}

func (s *DriverSuite) TestParamAndValuerArguments() {
	s.db.MustExec("INSERT INTO items VALUES (?, ?, ?)", ifx.Int(7), sql.NullString{String: "seven", Valid: true}, ifx.Text("2024-01-01"))

	var name string
	s.Require().NoError(s.db.Get(&name, "SELECT name FROM items WHERE id = ?", int8(7)))
	s.Equal("seven", name)
}

func (s *DriverSuite) TestTransactionsNotSupported() {
	_, err := s.db.Begin()
	s.ErrorIs(err, sqldriver.ErrTxNotSupported)
}

func (s *DriverSuite) TestSyntaxError() {
	_, err := s.db.Exec("INSERT INTO nowhere VALUES (?)", 1)
	s.ErrorIs(err, ifx.ErrPrepareStatement)
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}

func TestRegisteredDriver(t *testing.T) {
	emu := sqlemu.New()
	sql.Register("ifx-emulated", sqldriver.Driver{API: emu})

	db, err := sql.Open("ifx-emulated", memoryDSN)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 40 + ?", 2).Scan(&n))
	assert.Equal(t, 42, n)
	require.NoError(t, db.Close())
	assert.Zero(t, emu.Live())
}

func TestConnectFailure(t *testing.T) {
	emu := sqlemu.New()
	db := sql.OpenDB(sqldriver.NewConnector(emu, "DRIVER=nosuch"))
	defer db.Close()

	err := db.Ping()
	assert.ErrorIs(t, err, ifx.ErrConnection)
	assert.Zero(t, emu.Live(), "failed connection is released")
}

func TestDriverWithoutAPI(t *testing.T) {
	_, err := sqldriver.Driver{}.OpenConnector(memoryDSN)
	assert.ErrorIs(t, err, ifx.ErrInvalidArgument)
}

var _ driver.DriverContext = sqldriver.Driver{}
