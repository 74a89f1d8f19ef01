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

// Package arrowrows turns fetched result sets into Arrow records.
//
// Every value crosses the native interface as SQL_C_CHAR, so every
// column becomes a nullable utf8 field. The SQL type reported by
// SQLDescribeCol is kept in the field metadata.
package arrowrows

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

// Field metadata keys.
const (
	MetadataKeyOrdinal  = "ifx.ordinal"
	MetadataKeyTypeName = "ifx.type_name"
	MetadataKeySize     = "ifx.size"
)

const DefaultBatchSize = 1024

// Schema returns the schema of a result set described by cols. Columns
// the driver reports as NOT NULL become non-nullable fields.
func Schema(cols []ifx.ColumnMetadata) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     arrow.BinaryTypes.String,
			Nullable: c.Nullable != native.NoNulls,
			Metadata: arrow.NewMetadata(
				[]string{MetadataKeyOrdinal, MetadataKeyTypeName, MetadataKeySize},
				[]string{strconv.Itoa(c.Ordinal), c.DataType.String(), strconv.FormatUint(c.Size, 10)},
			),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Read fetches the rest of stmt's current result set into records of at
// most batchSize rows. batchSize <= 0 selects DefaultBatchSize. The
// caller releases the reader.
func Read(mem memory.Allocator, stmt *ifx.Stmt, batchSize int) (array.RecordReader, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cols, err := stmt.DescribeColumns()
	if err != nil {
		return nil, err
	}
	schema := Schema(cols)

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	var (
		recs []arrow.Record
		n    int
	)
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	for {
		cells, ok, err := stmt.FetchCells()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := appendCells(bldr, cells); err != nil {
			return nil, err
		}
		if n++; n == batchSize {
			recs = append(recs, bldr.NewRecord())
			n = 0
		}
	}
	if n > 0 {
		recs = append(recs, bldr.NewRecord())
	}
	return array.NewRecordReader(schema, recs)
}

func appendCells(bldr *array.RecordBuilder, cells []ifx.Cell) error {
	if len(cells) != bldr.Schema().NumFields() {
		return &ifx.Error{
			Kind: ifx.KindDataFetch,
			Msg:  fmt.Sprintf("row has %d columns, result set describes %d", len(cells), bldr.Schema().NumFields()),
		}
	}
	for i, c := range cells {
		fb := bldr.Field(i).(*array.StringBuilder)
		if c.Null {
			fb.AppendNull()
			continue
		}
		fb.Append(c.Value)
	}
	return nil
}

// FromRows builds one record from rows already fetched, such as the
// result of a pool query. A value equal to ifx.NullToken becomes null in
// every field of schema that is nullable.
func FromRows(mem memory.Allocator, schema *arrow.Schema, rows []ifx.Row) (arrow.Record, error) {
	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	width := schema.NumFields()
	for r, row := range rows {
		if len(row) != width {
			return nil, &ifx.Error{
				Kind: ifx.KindInvalidArgument,
				Msg:  fmt.Sprintf("row %d has %d values, schema has %d fields", r, len(row), width),
			}
		}
		for i, v := range row {
			fb, ok := bldr.Field(i).(*array.StringBuilder)
			if !ok {
				return nil, &ifx.Error{
					Kind: ifx.KindInvalidArgument,
					Msg:  fmt.Sprintf("field %q is %s, not utf8", schema.Field(i).Name, schema.Field(i).Type),
				}
			}
			if v == ifx.NullToken && schema.Field(i).Nullable {
				fb.AppendNull()
				continue
			}
			fb.Append(v)
		}
	}
	return bldr.NewRecord(), nil
}

// NameSchema is a schema of nullable utf8 fields with the given names,
// for rows whose columns were never described.
func NameSchema(names ...string) *arrow.Schema {
	fields := make([]arrow.Field, len(names))
	for i, n := range names {
		fields[i] = arrow.Field{Name: n, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}
