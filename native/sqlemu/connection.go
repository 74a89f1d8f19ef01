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
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/berrytern/ifx/native"
)

// Connection string keys understood by the emulator. Every other key is
// accepted and ignored, as the real driver ignores keys it does not know.
const (
	KeyDriver   = "DRIVER"
	KeyDatabase = "DATABASE"
)

// Engines selectable with the DRIVER key.
const (
	EngineSQLite = "sqlite"
	EnginePgx    = "pgx"
	EngineMySQL  = "mysql"
)

const defaultDatabase = ":memory:"

type connection struct {
	env     native.Handle
	engine  string
	db      *sql.DB
	sqlConn *sql.Conn
	stmts   map[native.Handle]struct{}
}

type dataSource struct {
	engine   string
	database string
}

func (d dataSource) String() string {
	return KeyDriver + "=" + d.engine + ";" + KeyDatabase + "=" + d.database
}

func parseDataSource(connStr string) dataSource {
	ds := dataSource{engine: EngineSQLite}
	for _, part := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case KeyDriver:
			ds.engine = strings.ToLower(strings.TrimSpace(value))
		case KeyDatabase:
			ds.database = strings.TrimSpace(value)
		}
	}
	if ds.database == "" && ds.engine == EngineSQLite {
		ds.database = defaultDatabase
	}
	return ds
}

// validate checks the data source with the engine's own parser so that a
// malformed one fails at connect time, the way SQLDriverConnect does.
func (d dataSource) validate() error {
	switch d.engine {
	case EngineSQLite:
		return nil
	case EnginePgx:
		_, err := pgx.ParseConfig(d.database)
		return err
	case EngineMySQL:
		_, err := mysql.ParseDSN(d.database)
		return err
	}
	return fmt.Errorf("unknown driver %q", d.engine)
}

func (e *Emulator) DriverConnect(dbc native.Handle, connStr string, outLen int) (string, native.Return) {
	obj, ok := e.lookup(native.HandleDbc, dbc)
	if !ok {
		return "", native.InvalidHandle
	}
	defer obj.mu.Unlock()

	if strings.IndexByte(connStr, 0) >= 0 {
		return "", obj.fail("HY090", 0, msgPrefix+"Invalid string or buffer length")
	}
	ds := parseDataSource(connStr)
	if ret := e.open(obj, ds); !ret.Succeeded() {
		return "", ret
	}

	out := ds.String()
	if outLen > 0 && len(out) > outLen-1 {
		return out[:outLen-1], obj.warn("01004", msgPrefix+"String data, right truncated")
	}
	return out, native.Success
}

// Connect treats server as the DATABASE of the default engine. user and
// password are accepted and ignored.
func (e *Emulator) Connect(dbc native.Handle, server, _, _ string) native.Return {
	obj, ok := e.lookup(native.HandleDbc, dbc)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()

	ds := dataSource{engine: EngineSQLite, database: server}
	if ds.database == "" {
		ds.database = defaultDatabase
	}
	return e.open(obj, ds)
}

func (e *Emulator) open(obj *handle, ds dataSource) native.Return {
	c := obj.conn
	if c.sqlConn != nil {
		return obj.fail("08002", 0, msgPrefix+"Connection name in use")
	}
	if err := ds.validate(); err != nil {
		return obj.fail("08001", -908, msgPrefix+"Unable to connect to data source: "+err.Error())
	}

	db, err := sql.Open(ds.engine, ds.database)
	if err != nil {
		return obj.fail("08001", -908, msgPrefix+err.Error())
	}
	// one physical session per handle; temporary tables and :memory:
	// databases must survive between statements
	conn, err := db.Conn(context.Background())
	if err != nil {
		_ = db.Close()
		return obj.fail("08001", -908, msgPrefix+err.Error())
	}
	c.engine, c.db, c.sqlConn = ds.engine, db, conn
	e.logger.Debug("emulated connection opened", "driver", ds.engine)
	return native.Success
}

func (e *Emulator) Disconnect(dbc native.Handle) native.Return {
	obj, ok := e.lookup(native.HandleDbc, dbc)
	if !ok {
		return native.InvalidHandle
	}
	defer obj.mu.Unlock()

	c := obj.conn
	if c.sqlConn == nil {
		return obj.fail("08003", 0, msgPrefix+"Connection not open")
	}
	// SQLDisconnect frees the statements still allocated on the connection
	for id := range c.stmts {
		if st, ok := e.handles.Remove(uint64(id)); ok {
			st.stmt.close()
			st.freed = true
		}
	}
	clear(c.stmts)

	err := c.sqlConn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	c.sqlConn, c.db = nil, nil
	if err != nil {
		return obj.warn("01002", msgPrefix+"Disconnect error: "+err.Error())
	}
	return native.Success
}
