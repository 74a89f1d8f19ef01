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

// Package sqldriver adapts ifx connections to the standard database/sql
// package, described here: https://go.dev/src/database/sql/doc.txt
//
// A Driver carries the native.API every connection is opened through.
// The data source name is the connection string handed verbatim to
// SQLDriverConnect:
//
//	db := sql.OpenDB(sqldriver.NewConnector(api, "DSN=stores;UID=informix"))
//
// or, after registering it under a name,
//
//	sql.Register("ifx", sqldriver.Driver{API: api})
//	db, err := sql.Open("ifx", "DSN=stores;UID=informix")
//
// Arguments are converted to the three parameter kinds the binder knows:
// integers that fit in 32 bits, strings and byte slices as text, and
// civil.Date or time.Time as dates. ifx.Param values pass through. NULL
// arguments and named parameters are rejected. Every column is returned
// as a string, NULL as nil.
//
// Transactions are not supported.
package sqldriver
