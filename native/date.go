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

package native

import (
	"encoding/binary"
	"fmt"
)

// DateStructSize is sizeof(SQL_DATE_STRUCT).
const DateStructSize = 6

// DateStruct mirrors SQL_DATE_STRUCT: SQLSMALLINT year, SQLUSMALLINT
// month, SQLUSMALLINT day, laid out without padding.
type DateStruct struct {
	Year  int16
	Month uint16
	Day   uint16
}

// Bytes returns the in-memory layout of d in native byte order.
func (d DateStruct) Bytes() []byte {
	buf := make([]byte, DateStructSize)
	binary.NativeEndian.PutUint16(buf[0:], uint16(d.Year))
	binary.NativeEndian.PutUint16(buf[2:], d.Month)
	binary.NativeEndian.PutUint16(buf[4:], d.Day)
	return buf
}

// DecodeDateStruct is the inverse of DateStruct.Bytes.
func DecodeDateStruct(buf []byte) (DateStruct, error) {
	if len(buf) != DateStructSize {
		return DateStruct{}, fmt.Errorf("date struct must be %d bytes, got %d", DateStructSize, len(buf))
	}
	return DateStruct{
		Year:  int16(binary.NativeEndian.Uint16(buf[0:])),
		Month: binary.NativeEndian.Uint16(buf[2:]),
		Day:   binary.NativeEndian.Uint16(buf[4:]),
	}, nil
}

// String renders d as YYYY-MM-DD.
func (d DateStruct) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// LongBytes returns the 4-byte SQLINTEGER layout of v.
func LongBytes(v int32) []byte {
	buf := make([]byte, 4)
	binary.NativeEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeLong is the inverse of LongBytes.
func DecodeLong(buf []byte) (int32, error) {
	if len(buf) != 4 {
		return 0, fmt.Errorf("SQLINTEGER must be 4 bytes, got %d", len(buf))
	}
	return int32(binary.NativeEndian.Uint32(buf)), nil
}
