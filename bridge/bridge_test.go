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

package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native/sqlemu"
)

const memoryDSN = "DRIVER=sqlite;DATABASE=:memory:"

func newBridge(t *testing.T, workers int) *Bridge {
	t.Helper()
	b, err := New(workers)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ifx.ErrInvalidArgument)
}

func TestCall(t *testing.T) {
	b := newBridge(t, 2)

	v, err := Call(context.Background(), b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = Call(context.Background(), b, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestCallRecoversPanic(t *testing.T) {
	b := newBridge(t, 1)
	_, err := Call(context.Background(), b, func() (int, error) { panic("native crash") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "native crash")

	v, err := Call(context.Background(), b, func() (string, error) { return "alive", nil })
	require.NoError(t, err)
	assert.Equal(t, "alive", v)
}

func TestCancelStopsWaitNotCall(t *testing.T) {
	b := newBridge(t, 1)
	unblock := make(chan struct{})
	var finished atomic.Bool

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Call(ctx, b, func() (int, error) {
		<-unblock
		finished.Store(true)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, finished.Load())

	close(unblock)
	v, err := Call(context.Background(), b, func() (bool, error) { return finished.Load(), nil })
	require.NoError(t, err)
	assert.True(t, v, "the abandoned call ran to completion first")
}

func TestCallAfterClose(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)
	b.Close()
	b.Close()

	_, err = Call(context.Background(), b, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestExclusiveSerializesCalls(t *testing.T) {
	b := newBridge(t, 4)
	c := &Conn{b: b, sem: newSem()}

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exclusive(context.Background(), c, func() (struct{}, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak.Load())
}

func TestAbandonedCallKeepsConnectionBusy(t *testing.T) {
	b := newBridge(t, 2)
	c := &Conn{b: b, sem: newSem()}
	unblock := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := exclusive(ctx, c, func() (int, error) { <-unblock; return 0, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = exclusive(ctx2, c, func() (int, error) { return 0, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "connection busy")

	close(unblock)
	v, err := exclusive(context.Background(), c, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestConnRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t, 2)
	emu := sqlemu.New()

	conn, err := Open(ctx, b, emu, memoryDSN)
	require.NoError(t, err)

	rows, err := conn.QueryWithParameters(ctx, "SELECT ?, ?", ifx.Int(1), ifx.Date(civil.Date{Year: 2024, Month: 9, Day: 7}))
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"1", "2024-09-07"}}, rows)

	stmt, err := conn.Prepare(ctx, "SELECT ? || '!'")
	require.NoError(t, err)
	require.NoError(t, stmt.Bind(ctx, 1, ifx.Text("hi")))
	require.NoError(t, stmt.Execute(ctx))
	cols, err := stmt.DescribeColumns(ctx)
	require.NoError(t, err)
	assert.Len(t, cols, 1)
	row, ok, err := stmt.Fetch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ifx.Row{"hi!"}, row)
	_, ok, err = stmt.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err = stmt.Query(ctx, ifx.Text("again"))
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"again!"}}, rows)
	require.NoError(t, stmt.Close())

	direct, err := conn.Execute(ctx, "VALUES (1), (2), (3)")
	require.NoError(t, err)
	all, err := direct.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, conn.Close())
	assert.Zero(t, emu.Live())
}

func TestOpenFailure(t *testing.T) {
	b := newBridge(t, 1)
	emu := sqlemu.New()
	_, err := Open(context.Background(), b, emu, "DRIVER=nosuch")
	assert.ErrorIs(t, err, ifx.ErrConnection)
	assert.Zero(t, emu.Live())
}

func TestCloseAfterBridgeClosed(t *testing.T) {
	ctx := context.Background()
	b, err := New(1)
	require.NoError(t, err)
	emu := sqlemu.New()

	conn, err := Open(ctx, b, emu, memoryDSN)
	require.NoError(t, err)
	stmt, err := conn.Execute(ctx, "VALUES (1)")
	require.NoError(t, err)
	b.Close()

	_, err = conn.QueryWithParameters(ctx, "SELECT 1")
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, stmt.Close())
	assert.Equal(t, 2, emu.Live())
	require.NoError(t, conn.Close())
	assert.Zero(t, emu.Live())
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t, 2)
	emu := sqlemu.New()

	conn, err := Open(ctx, b, emu, memoryDSN)
	require.NoError(t, err)
	cur := conn.Cursor()

	_, _, err = cur.FetchOne(ctx)
	require.ErrorIs(t, err, ifx.ErrInvalidState)

	require.NoError(t, cur.Execute(ctx, "VALUES (1), (2), (3)"))
	row, ok, err := cur.FetchOne(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ifx.Row{"1"}, row)
	rest, err := cur.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"2"}, {"3"}}, rest)

	require.NoError(t, cur.ExecuteWithParams(ctx, "SELECT ? AS n, ? AS s", ifx.Int(5), ifx.Text("five")))
	cols, err := cur.Description(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "n", cols[0].Name)
	all, err := cur.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"5", "five"}}, all)

	err = cur.ExecuteWithParams(ctx, "SELEC nonsense", ifx.Int(1))
	assert.ErrorIs(t, err, ifx.ErrPrepareStatement)

	require.NoError(t, cur.Close())
	assert.Equal(t, 2, emu.Live())
	require.NoError(t, conn.Close())
	assert.Zero(t, emu.Live())
}
