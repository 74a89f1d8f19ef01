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

// Command ifxquery runs one SQL statement through the ifx client layer,
// directly on a connection, through the async bridge or through a
// connection pool, and prints the rows.
//
//	ifxquery --dsn "DSN=stores_demo" --param int:101 "SELECT fname FROM customer WHERE customer_num = ?"
//	ifxquery --emulate --dsn "DRIVER=sqlite" --pool 4 --repeat 100 "SELECT ?" --param text:x
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jessevdk/go-flags"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/internal/logsink"
	"github.com/berrytern/ifx/internal/telemetry"
	"github.com/berrytern/ifx/native"
	"github.com/berrytern/ifx/native/cli"
	"github.com/berrytern/ifx/native/sqlemu"
)

type options struct {
	DSN     string   `short:"d" long:"dsn" env:"IFX_DSN" required:"true" description:"connection string handed to SQLDriverConnect"`
	Emulate bool     `long:"emulate" description:"run against the built-in emulator instead of libifcli"`
	Params  []string `long:"param" description:"parameter as kind:value, kind is int, text or date (YYYY-MM-DD)"`

	Pool        int               `short:"p" long:"pool" description:"serve through a pool of this many connections"`
	PoolOptions map[string]string `long:"pool-opt" description:"pool option as key:value, e.g. ifx.pool.statement_cache_size:16"`
	Bridge      int               `short:"b" long:"bridge" description:"run on a bridge with this many workers"`

	Repeat      int           `short:"n" long:"repeat" default:"1" description:"number of times the statement is run"`
	Concurrency int           `short:"c" long:"concurrency" default:"4" description:"concurrent runs when repeating"`
	Timeout     time.Duration `long:"timeout" default:"30s" description:"overall time limit"`

	Format   string `short:"f" long:"format" default:"table" choice:"table" choice:"json" description:"output format"`
	Describe bool   `long:"describe" description:"print the column descriptions before the rows"`

	Trace  string `long:"trace" choice:"none" choice:"console" choice:"otlp" choice:"file" description:"trace exporter, defaults to $OTEL_TRACES_EXPORTER"`
	LogDir string `long:"log-dir" description:"write JSON logs to rotating files in this folder"`
	Dbg    bool   `long:"dbg" description:"debug logging"`

	Args struct {
		Query string `positional-arg-name:"query" description:"SQL statement"`
	} `positional-args:"yes" required:"yes"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ifxquery: %v\n", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	logger, closeLog, err := setupLog(opts, stderr)
	if err != nil {
		return fmt.Errorf("can't set up logging: %w", err)
	}
	defer closeLog()

	tracer, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "ifxquery",
		Version:     revision,
		Exporter:    opts.Trace,
	})
	if err != nil {
		return fmt.Errorf("can't set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("trace shutdown failed", slog.Any("error", err))
		}
	}()

	params, err := parseParams(opts.Params)
	if err != nil {
		return err
	}
	api, err := openAPI(opts.Emulate, logger)
	if err != nil {
		return err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	connOpts := []ifx.Option{ifx.WithLogger(logger), ifx.WithTracer(tracer)}
	r := runner{
		api:      api,
		opts:     opts,
		params:   params,
		connOpts: connOpts,
		logger:   logger,
		out:      newPrinter(stdout, opts.Format),
	}
	logger.Debug("running", slog.String("revision", revision), slog.Int("pool", opts.Pool),
		slog.Int("bridge", opts.Bridge), slog.Int("repeat", opts.Repeat))

	switch {
	case opts.Pool > 0 && opts.Bridge > 0:
		return fmt.Errorf("--pool and --bridge are exclusive")
	case opts.Pool > 0:
		return r.viaPool(ctx, tracer)
	case opts.Bridge > 0:
		return r.viaBridge(ctx)
	default:
		return r.direct(ctx)
	}
}

func setupLog(opts options, stderr io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if opts.Dbg {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.LogDir == "" {
		return slog.New(slog.NewTextHandler(stderr, hopts)), func() {}, nil
	}
	w, err := logsink.New(logsink.WithDir(opts.LogDir), logsink.WithPrefix("ifxquery"))
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(w, hopts)), func() { _ = w.Close() }, nil
}

func openAPI(emulate bool, logger *slog.Logger) (native.API, error) {
	if emulate {
		return sqlemu.New(sqlemu.WithLogger(logger)), nil
	}
	api, err := cli.Open(cli.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("can't open the native library (use --emulate to run without it): %w", err)
	}
	return api, nil
}

// parseParams parses kind:value pairs.
func parseParams(specs []string) ([]ifx.Param, error) {
	params := make([]ifx.Param, 0, len(specs))
	for i, spec := range specs {
		kind, val, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("parameter %d: %q is not kind:value", i+1, spec)
		}
		switch strings.ToLower(kind) {
		case "int":
			n, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parameter %d: %w", i+1, err)
			}
			params = append(params, ifx.Int(int32(n)))
		case "text":
			params = append(params, ifx.Text(val))
		case "date":
			d, err := civil.ParseDate(val)
			if err != nil {
				return nil, fmt.Errorf("parameter %d: %w", i+1, err)
			}
			params = append(params, ifx.Date(d))
		default:
			return nil, fmt.Errorf("parameter %d: unknown kind %q", i+1, kind)
		}
	}
	return params, nil
}
