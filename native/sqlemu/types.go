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
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/berrytern/ifx/native"
)

var rowKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "VALUES": true, "PRAGMA": true,
	"SHOW": true, "EXPLAIN": true, "DESCRIBE": true, "TABLE": true,
}

// returnsRows decides between QueryContext and ExecContext from the
// leading keyword, or a RETURNING clause.
func returnsRows(query string) bool {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || r == '('
	})
	if len(fields) == 0 {
		return false
	}
	if rowKeywords[strings.ToUpper(fields[0])] {
		return true
	}
	return strings.Contains(strings.ToUpper(query), " RETURNING ")
}

// rewritePlaceholders turns ? markers into $n for engines that use
// numbered placeholders. Markers inside quoted literals are kept.
func rewritePlaceholders(engine, query string) string {
	if engine != EnginePgx || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// render produces the SQL_C_CHAR form of a scanned value.
func render(v any) ([]byte, bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case []byte:
		return v, false
	case string:
		return []byte(v), false
	case int64:
		return strconv.AppendInt(nil, v, 10), false
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), false
	case float64:
		return strconv.AppendFloat(nil, v, 'g', -1, 64), false
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'g', -1, 32), false
	case bool:
		if v {
			return []byte("1"), false
		}
		return []byte("0"), false
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return []byte(v.Format(time.DateOnly)), false
		}
		return []byte(v.Format(time.DateTime)), false
	}
	return []byte(fmt.Sprint(v)), false
}

var sqlTypes = map[string]native.SQLType{
	"INTEGER": native.TypeInteger, "INT": native.TypeInteger, "INT4": native.TypeInteger,
	"MEDIUMINT": native.TypeInteger, "SERIAL": native.TypeInteger,
	"SMALLINT": native.TypeSmallInt, "INT2": native.TypeSmallInt, "TINYINT": native.TypeSmallInt,
	"BIGINT": native.TypeBigInt, "INT8": native.TypeBigInt, "BIGSERIAL": native.TypeBigInt,
	"REAL": native.TypeReal, "FLOAT4": native.TypeReal,
	"FLOAT": native.TypeFloat, "DOUBLE": native.TypeDouble, "FLOAT8": native.TypeDouble,
	"NUMERIC": native.TypeNumeric, "DECIMAL": native.TypeDecimal,
	"CHAR": native.TypeChar, "BPCHAR": native.TypeChar,
	"VARCHAR": native.TypeVarchar, "TEXT": native.TypeLongVarchar,
	"DATE":     native.TypeDate,
	"DATETIME": native.TypeTimestamp, "TIMESTAMP": native.TypeTimestamp, "TIMESTAMPTZ": native.TypeTimestamp,
	"BLOB": native.TypeBinary, "BYTEA": native.TypeBinary, "BINARY": native.TypeBinary,
}

func describe(ct *sql.ColumnType) native.ColumnDescription {
	d := native.ColumnDescription{
		Name:     ct.Name(),
		DataType: native.TypeVarchar,
		Nullable: native.NullableUnknown,
	}
	name, _, _ := strings.Cut(strings.ToUpper(ct.DatabaseTypeName()), "(")
	if t, ok := sqlTypes[strings.TrimSpace(name)]; ok {
		d.DataType = t
	}
	if n, ok := ct.Length(); ok && n > 0 {
		d.ColumnSize = uint64(n)
	}
	if _, scale, ok := ct.DecimalSize(); ok {
		d.DecimalDigits = int16(scale)
	}
	if nullable, ok := ct.Nullable(); ok {
		d.Nullable = native.NoNulls
		if nullable {
			d.Nullable = native.Nullable
		}
	}
	return d
}
