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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/arrowrows"
	"github.com/berrytern/ifx/native"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

func (p *printer) describe(cols []ifx.ColumnMetadata) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tTYPE\tSIZE\tDIGITS\tNULLABLE")
	for _, c := range cols {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", c.Ordinal, c.Name, c.DataType, c.Size, c.DecimalDigits, nullability(c))
	}
	tw.Flush()
}

func nullability(c ifx.ColumnMetadata) string {
	switch c.Nullable {
	case native.NoNulls:
		return "no"
	case native.Nullable:
		return "yes"
	}
	return "unknown"
}

// rows prints rows that were fetched already.
func (p *printer) rows(schema *arrow.Schema, rows []ifx.Row) error {
	rec, err := arrowrows.FromRows(memory.DefaultAllocator, schema, rows)
	if err != nil {
		return err
	}
	defer rec.Release()
	rdr, err := array.NewRecordReader(schema, []arrow.Record{rec})
	if err != nil {
		return err
	}
	defer rdr.Release()
	return p.records(rdr)
}

// records prints every record of rdr, whose fields are all utf8.
func (p *printer) records(rdr array.RecordReader) error {
	fields := rdr.Schema().Fields()
	var (
		tw  *tabwriter.Writer
		enc *json.Encoder
	)
	switch p.format {
	case "json":
		enc = json.NewEncoder(p.w)
	default:
		tw = tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		for i, f := range fields {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, f.Name)
		}
		fmt.Fprintln(tw)
	}

	count := 0
	for rdr.Next() {
		rec := rdr.RecordBatch()
		for r := 0; r < int(rec.NumRows()); r++ {
			obj := make(map[string]any, len(fields))
			for c := range fields {
				col := rec.Column(c).(*array.String)
				var v any
				if !col.IsNull(r) {
					v = col.Value(r)
				}
				if enc != nil {
					obj[fields[c].Name] = v
					continue
				}
				if c > 0 {
					fmt.Fprint(tw, "\t")
				}
				if v == nil {
					v = ifx.NullToken
				}
				fmt.Fprint(tw, v)
			}
			if enc != nil {
				if err := enc.Encode(obj); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(tw)
		}
		count += int(rec.NumRows())
	}
	if err := rdr.Err(); err != nil {
		return err
	}
	if tw != nil {
		fmt.Fprintf(tw, "(%d rows)\n", count)
		return tw.Flush()
	}
	return nil
}
