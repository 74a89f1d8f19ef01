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
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/berrytern/ifx/native"
)

// ParamKind is the tag of a Param.
type ParamKind uint8

const (
	ParamInt ParamKind = iota + 1
	ParamText
	ParamDate
)

func (k ParamKind) String() string {
	switch k {
	case ParamInt:
		return "Integer"
	case ParamText:
		return "Text"
	case ParamDate:
		return "Date"
	}
	return "Param(" + strconv.Itoa(int(k)) + ")"
}

// Param is a value bound to a statement placeholder. The zero Param is
// invalid; build one with Int, Text or Date.
type Param struct {
	kind ParamKind
	i    int32
	s    string
	d    civil.Date
}

// Int is an SQL_INTEGER parameter.
func Int(v int32) Param { return Param{kind: ParamInt, i: v} }

// Text is an SQL_VARCHAR parameter. s must not contain NUL.
func Text(s string) Param { return Param{kind: ParamText, s: s} }

// Date is an SQL_TYPE_DATE parameter.
func Date(d civil.Date) Param { return Param{kind: ParamDate, d: d} }

func (p Param) Kind() ParamKind { return p.kind }

// String is the canonical text form of the value, which is also what an
// echo query returns for it.
func (p Param) String() string {
	switch p.kind {
	case ParamInt:
		return strconv.FormatInt(int64(p.i), 10)
	case ParamText:
		return p.s
	case ParamDate:
		return p.d.String()
	}
	return "<invalid>"
}

// binding encodes p for SQLBindParameter at ordinal.
func (p Param) binding(ordinal uint16) (native.Binding, error) {
	b := native.Binding{Ordinal: ordinal, IOType: native.ParamInput}
	switch p.kind {
	case ParamInt:
		b.ValueType, b.ParamType = native.CLong, native.TypeInteger
		b.Value = native.LongBytes(p.i)

	case ParamText:
		if strings.IndexByte(p.s, 0) >= 0 {
			return b, &Error{Kind: KindParameterBinding, Ordinal: int(ordinal), Msg: "text parameter contains a NUL byte"}
		}
		n := int64(len(p.s))
		b.ValueType, b.ParamType = native.CChar, native.TypeVarchar
		b.ColumnSize = uint64(max(n, 1))
		b.Value = []byte(p.s)
		b.Indicator = &n

	case ParamDate:
		if !p.d.IsValid() || p.d.Year < math.MinInt16 || p.d.Year > math.MaxInt16 {
			return b, &Error{Kind: KindParameterBinding, Ordinal: int(ordinal), Msg: "invalid date " + p.d.String()}
		}
		b.ValueType, b.ParamType = native.CTypeDate, native.TypeDate
		b.ColumnSize = 10
		b.Value = native.DateStruct{Year: int16(p.d.Year), Month: uint16(p.d.Month), Day: uint16(p.d.Day)}.Bytes()

	default:
		return b, &Error{Kind: KindParameterBinding, Ordinal: int(ordinal), Msg: "parameter has no value"}
	}
	return b, nil
}
