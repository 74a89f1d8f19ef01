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

package pool_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
	"github.com/berrytern/ifx/native/sqlemu"
	"github.com/berrytern/ifx/pool"
)

const memoryDSN = "DRIVER=sqlite;DATABASE=:memory:"

func newPool(t *testing.T, api native.API, cfg pool.Config) *pool.Pool {
	t.Helper()
	if cfg.ConnectionString == "" {
		cfg.ConnectionString = memoryDSN
	}
	p, err := pool.New(context.Background(), api, cfg)
	require.NoError(t, err)
	return p
}

func TestRoundRobin(t *testing.T) {
	emu := sqlemu.New()
	p := newPool(t, emu, pool.Config{Size: 2})
	ctx := context.Background()

	// every slot has its own in-memory database
	for range p.Size() {
		_, err := p.Query(ctx, "CREATE TABLE seen (n INTEGER)")
		require.NoError(t, err)
	}
	for i := range 10 {
		_, err := p.Query(ctx, "INSERT INTO seen VALUES (?)", ifx.Int(int32(i)))
		require.NoError(t, err)
	}

	even, err := p.Query(ctx, "SELECT n FROM seen ORDER BY n")
	require.NoError(t, err)
	odd, err := p.Query(ctx, "SELECT n FROM seen ORDER BY n")
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"0"}, {"2"}, {"4"}, {"6"}, {"8"}}, even)
	assert.Equal(t, []ifx.Row{{"1"}, {"3"}, {"5"}, {"7"}, {"9"}}, odd)

	for _, st := range p.Stats() {
		assert.Equal(t, uint64(7), st.Served, "slot %d", st.Slot)
		assert.Zero(t, st.Failed)
	}

	require.NoError(t, p.Close())
	assert.Zero(t, emu.Live(), "leaked handles: %v", emu.LiveByType())
}

func TestConcurrentCallers(t *testing.T) {
	emu := sqlemu.New()
	p := newPool(t, emu, pool.Config{Size: 3, MailboxCapacity: 4})
	defer p.Close()

	var g errgroup.Group
	for i := range 60 {
		g.Go(func() error {
			rows, err := p.Query(context.Background(), "SELECT ?", ifx.Int(int32(i)))
			if err != nil {
				return err
			}
			if len(rows) != 1 || rows[0][0] != fmt.Sprint(i) {
				return fmt.Errorf("request %d got %v", i, rows)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var served uint64
	for _, st := range p.Stats() {
		served += st.Served
		assert.Equal(t, pool.Idle, st.State)
	}
	assert.Equal(t, uint64(60), served)
}

func TestSlotOrder(t *testing.T) {
	p := newPool(t, sqlemu.New(), pool.Config{Size: 1, MailboxCapacity: 8})
	defer p.Close()
	ctx := context.Background()

	_, err := p.Query(ctx, "CREATE TABLE log (seq INTEGER)")
	require.NoError(t, err)

	// a single caller posts in order, the slot serves in the same order
	for i := range 20 {
		_, err := p.Query(ctx, "INSERT INTO log VALUES (?)", ifx.Int(int32(i)))
		require.NoError(t, err)
	}
	rows, err := p.Query(ctx, "SELECT seq FROM log ORDER BY rowid")
	require.NoError(t, err)
	require.Len(t, rows, 20)
	for i, r := range rows {
		assert.Equal(t, fmt.Sprint(i), r[0])
	}
}

// gatedAPI parks the first Execute after arm until the gate is opened.
type gatedAPI struct {
	native.API
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func newGatedAPI(api native.API) *gatedAPI {
	return &gatedAPI{API: api, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedAPI) Execute(stmt native.Handle) native.Return {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.gate
	}
	return g.API.Execute(stmt)
}

func TestSlotOrderUnderConcurrentCallers(t *testing.T) {
	const callers = 12
	emu := sqlemu.New()
	api := newGatedAPI(emu)
	p := newPool(t, api, pool.Config{Size: 1, MailboxCapacity: callers})
	defer p.Close()
	ctx := context.Background()

	_, err := p.Query(ctx, "CREATE TABLE log (caller INTEGER, pos INTEGER)")
	require.NoError(t, err)

	api.armed.Store(true)
	var busy errgroup.Group
	busy.Go(func() error {
		_, err := p.Query(ctx, "SELECT 1")
		return err
	})
	<-api.entered

	// each caller enters the mailbox only after the previous one is queued
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			rows, err := p.Query(ctx, "INSERT INTO log SELECT ?, count(*) FROM log", ifx.Int(int32(i)))
			if err != nil {
				return err
			}
			if rows != nil {
				return fmt.Errorf("caller %d got rows %v", i, rows)
			}
			return nil
		})
		require.Eventually(t, func() bool {
			return p.Stats()[0].Queued == i+1
		}, 5*time.Second, time.Millisecond)
	}

	close(api.gate)
	require.NoError(t, busy.Wait())
	require.NoError(t, g.Wait())

	rows, err := p.Query(ctx, "SELECT caller, pos FROM log ORDER BY rowid")
	require.NoError(t, err)
	require.Len(t, rows, callers)
	for i, r := range rows {
		assert.Equal(t, ifx.Row{fmt.Sprint(i), fmt.Sprint(i)}, r)
	}
	assert.Equal(t, uint64(callers+3), p.Stats()[0].Served)
}

func TestQueryErrors(t *testing.T) {
	p := newPool(t, sqlemu.New(), pool.Config{Size: 1})
	defer p.Close()

	_, err := p.Query(context.Background(), "SELEC nonsense")
	assert.ErrorIs(t, err, ifx.ErrPrepareStatement)

	rows, err := p.Query(context.Background(), "SELECT 1")
	require.NoError(t, err, "slot keeps serving after a failure")
	assert.Equal(t, []ifx.Row{{"1"}}, rows)

	st := p.Stats()[0]
	assert.Equal(t, uint64(2), st.Served)
	assert.Equal(t, uint64(1), st.Failed)
}

func TestStatementCache(t *testing.T) {
	emu := sqlemu.New()
	faults := sqlemu.Inject(emu)
	p := newPool(t, faults, pool.Config{Size: 1, StatementCacheSize: 1})
	ctx := context.Background()

	for _, v := range []int32{1, 2, 3} {
		rows, err := p.Query(ctx, "SELECT ? * 2", ifx.Int(v))
		require.NoError(t, err)
		assert.Equal(t, []ifx.Row{{fmt.Sprint(v * 2)}}, rows)
	}
	assert.Equal(t, 1, faults.Calls(sqlemu.CallPrepare))

	// a second statement evicts the first
	_, err := p.Query(ctx, "SELECT 'other'")
	require.NoError(t, err)
	_, err = p.Query(ctx, "SELECT ? * 2", ifx.Int(4))
	require.NoError(t, err)
	assert.Equal(t, 3, faults.Calls(sqlemu.CallPrepare))
	assert.Equal(t, 1, emu.LiveByType()[native.HandleStmt], "evicted statements are freed")

	// an empty result is reported as no rows
	rows, err := p.Query(ctx, "SELECT 1 WHERE 1 = ?", ifx.Int(0))
	require.NoError(t, err)
	assert.Nil(t, rows)

	require.NoError(t, p.Close())
	assert.Zero(t, emu.Live(), "leaked handles: %v", emu.LiveByType())
}

func TestCachedStatementDroppedAfterFailure(t *testing.T) {
	emu := sqlemu.New()
	faults := sqlemu.Inject(emu)
	p := newPool(t, faults, pool.Config{Size: 1, StatementCacheSize: 4})
	defer p.Close()
	ctx := context.Background()

	_, err := p.Query(ctx, "SELECT ?", ifx.Int(1))
	require.NoError(t, err)

	faults.Fail(sqlemu.CallExecute, sqlemu.Fault{Return: native.Error, State: "HY000", Message: "lost", Times: 1})
	_, err = p.Query(ctx, "SELECT ?", ifx.Int(2))
	assert.ErrorIs(t, err, ifx.ErrSQLExecution)

	rows, err := p.Query(ctx, "SELECT ?", ifx.Int(3))
	require.NoError(t, err)
	assert.Equal(t, []ifx.Row{{"3"}}, rows)
	assert.Equal(t, 2, faults.Calls(sqlemu.CallPrepare))
}

func TestStartupFailureClosesStartedSlots(t *testing.T) {
	emu := sqlemu.New()
	faults := sqlemu.Inject(emu)
	faults.Fail(sqlemu.CallDriverConnect, sqlemu.Fault{Return: native.Error, State: "08001", Message: "refused", After: 1, Times: 1})

	_, err := pool.New(context.Background(), faults, pool.Config{Size: 3, ConnectionString: memoryDSN})
	assert.ErrorIs(t, err, ifx.ErrConnection)
	assert.Eventually(t, func() bool { return emu.Live() == 0 }, time.Second, 5*time.Millisecond,
		"leaked handles: %v", emu.LiveByType())
}

func TestClosedPool(t *testing.T) {
	p := newPool(t, sqlemu.New(), pool.Config{Size: 2})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, pool.ErrClosed)
	for _, st := range p.Stats() {
		assert.Equal(t, pool.Closed, st.State)
	}
}

func TestCanceledQuery(t *testing.T) {
	p := newPool(t, sqlemu.New(), pool.Config{Size: 1})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidConfig(t *testing.T) {
	for _, cfg := range []pool.Config{
		{Size: -1},
		{MailboxCapacity: -2},
		{StatementCacheSize: -1},
		{QueryTimeout: -time.Second},
	} {
		_, err := pool.New(context.Background(), sqlemu.New(), cfg)
		assert.ErrorIs(t, err, ifx.ErrInvalidArgument, "%+v", cfg)
	}
}

func TestConfigFromOptions(t *testing.T) {
	cfg, err := pool.ConfigFromOptions(map[string]string{
		pool.OptionKeySize:               "8",
		pool.OptionKeyConnectionString:   memoryDSN,
		pool.OptionKeyStatementCacheSize: "16",
		pool.OptionKeyQueryTimeout:       "1.5",
		pool.OptionKeyFetchBufferSize:    "512",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Size)
	assert.Equal(t, memoryDSN, cfg.ConnectionString)
	assert.Equal(t, pool.DefaultMailboxCapacity, cfg.MailboxCapacity)
	assert.Equal(t, 16, cfg.StatementCacheSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.QueryTimeout)
	assert.Len(t, cfg.ConnOptions, 1)

	for _, opts := range []map[string]string{
		{"ifx.pool.nosuch": "1"},
		{pool.OptionKeySize: "many"},
		{pool.OptionKeySize: "-3"},
		{pool.OptionKeyQueryTimeout: "-1"},
		{pool.OptionKeyQueryTimeout: "NaN"},
		{pool.OptionKeyQueryTimeout: "+Inf"},
	} {
		_, err := pool.ConfigFromOptions(opts)
		assert.ErrorIs(t, err, ifx.ErrInvalidArgument, "%v", opts)
	}
}
