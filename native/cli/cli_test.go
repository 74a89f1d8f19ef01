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

package cli_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/berrytern/ifx/native"
	"github.com/berrytern/ifx/native/cli"
	"github.com/berrytern/ifx/validation"
)

// IFX_TEST_DSN is the connection string of a live Informix server, e.g.
// "DSN=stores_demo;UID=informix;PWD=in4mix". IFX_TEST_DATE_FORMAT is the
// DBDATE-style layout the server returns dates in (default mdy4/).
type informixQuirks struct {
	api native.API
	dsn string
}

func (q *informixQuirks) SetupAPI(*testing.T) native.API     { return q.api }
func (q *informixQuirks) TearDownAPI(*testing.T, native.API) {}
func (q *informixQuirks) ConnectionString() string           { return q.dsn }
func (q *informixQuirks) EchoQuery() string {
	return "SELECT ?::LVARCHAR FROM sysmaster:sysdual"
}
func (q *informixQuirks) EmptyQuery() string {
	return "SELECT tabid FROM systables WHERE 1 = 0"
}

func (q *informixQuirks) CreateTable(name string) string {
	return "CREATE TEMP TABLE " + name + " (id INTEGER, name VARCHAR(20)) WITH NO LOG"
}

func (q *informixQuirks) FormatDate(d civil.Date) string {
	layout := os.Getenv("IFX_TEST_DATE_FORMAT")
	if layout == "" {
		layout = "01/02/2006"
	}
	return d.In(time.UTC).Format(layout)
}

func TestValidation(t *testing.T) {
	if !cli.Available {
		t.Skip("built without the native library")
	}
	dsn := os.Getenv("IFX_TEST_DSN")
	if dsn == "" {
		t.Skip("IFX_TEST_DSN not set")
	}
	api, err := cli.Open()
	require.NoError(t, err)

	q := &informixQuirks{api: api, dsn: dsn}
	suite.Run(t, &validation.HandleTests{Quirks: q})
	suite.Run(t, &validation.ConnectionTests{Quirks: q})
	suite.Run(t, &validation.StatementTests{Quirks: q})
}

func TestOpenWithoutLibrary(t *testing.T) {
	if cli.Available {
		t.Skip("built with the native library")
	}
	_, err := cli.Open(cli.WithLogger(nil))
	assert.ErrorIs(t, err, cli.ErrUnavailable)
	assert.True(t, strings.HasPrefix(err.Error(), "cli:"))
}
