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
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/berrytern/ifx/native"
)

// guard owns one native handle and releases it exactly once.
type guard struct {
	api    native.API
	typ    native.HandleType
	h      native.Handle
	logger *slog.Logger

	// connected is only meaningful for connection handles: release
	// disconnects first when it is set.
	connected atomic.Bool
	released  atomic.Bool
	once      sync.Once
}

var allocOps = map[native.HandleType]string{
	native.HandleEnv:  "SQLAllocHandle(SQL_HANDLE_ENV)",
	native.HandleDbc:  "SQLAllocHandle(SQL_HANDLE_DBC)",
	native.HandleStmt: "SQLAllocHandle(SQL_HANDLE_STMT)",
}

// allocate creates a handle of level typ under parent, whose own level is
// parentType. Failures are diagnosed on the parent.
func allocate(api native.API, logger *slog.Logger, typ native.HandleType, parentType native.HandleType, parent native.Handle) (*guard, error) {
	h, ret := api.AllocHandle(typ, parent)
	if ret != native.Success || h == native.NullHandle {
		return nil, nativeErr(api, KindHandleAllocation, parentType, parent, allocOps[typ], ret,
			"cannot allocate "+typ.String()+" handle")
	}
	return &guard{api: api, typ: typ, h: h, logger: logger}, nil
}

func (g *guard) handle() native.Handle { return g.h }

func (g *guard) live() bool { return !g.released.Load() }

// release frees the handle. Failures are logged, never returned: release
// runs on teardown paths that have nobody to report to.
func (g *guard) release() {
	g.once.Do(func() {
		g.released.Store(true)
		if g.typ == native.HandleDbc && g.connected.Load() {
			if ret := g.api.Disconnect(g.h); !ret.Succeeded() {
				g.logTeardown("SQLDisconnect", ret)
			}
			g.connected.Store(false)
		}
		if ret := g.api.FreeHandle(g.typ, g.h); ret != native.Success {
			g.logTeardown("SQLFreeHandle", ret)
		}
	})
}

func (g *guard) logTeardown(op string, ret native.Return) {
	attrs := []any{
		slog.String("op", op),
		slog.String("handle_type", g.typ.String()),
		slog.Uint64("handle", uint64(g.h)),
		slog.String("return", ret.String()),
	}
	if ret != native.InvalidHandle {
		attrs = append(attrs, slog.String("diagnostic", diagnose(g.api, g.typ, g.h).String()))
	}
	g.logger.Warn("handle teardown failed", attrs...)
}
