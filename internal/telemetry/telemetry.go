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

// Package telemetry sets up the tracer provider for the command line
// tools, choosing the exporter the way OpenTelemetry SDKs do: from the
// OTEL_TRACES_EXPORTER environment variable unless told otherwise.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/berrytern/ifx/internal/logsink"
)

// EnvTracesExporter names the exporter when Config.Exporter is empty.
const EnvTracesExporter = "OTEL_TRACES_EXPORTER"

type Exporter int

const (
	ExporterNone Exporter = iota
	ExporterOtlp
	ExporterConsole
	ExporterFile
)

var exporterNames = map[string]Exporter{
	"none":    ExporterNone,
	"otlp":    ExporterOtlp,
	"console": ExporterConsole,
	"file":    ExporterFile,
}

func (e Exporter) String() string {
	for name, v := range exporterNames {
		if v == e {
			return name
		}
	}
	return fmt.Sprintf("Exporter(%d)", int(e))
}

// ParseExporter maps an exporter name to an Exporter. The empty name is
// ExporterNone.
func ParseExporter(name string) (Exporter, error) {
	if name == "" {
		return ExporterNone, nil
	}
	if e, ok := exporterNames[name]; ok {
		return e, nil
	}
	return ExporterNone, fmt.Errorf("telemetry: unknown %s option '%s'", EnvTracesExporter, name)
}

type Config struct {
	// ServiceName is the service.name resource attribute and the tracer
	// name.
	ServiceName string
	Version     string
	// Exporter is an exporter name; empty reads EnvTracesExporter.
	Exporter string
	// FileOptions configure the rotating files of the file exporter.
	FileOptions []logsink.Option
}

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func(context.Context) error

func noShutdown(context.Context) error { return nil }

// Setup returns a tracer for cfg.ServiceName. With no exporter the
// global tracer provider is used and shutdown does nothing.
func Setup(ctx context.Context, cfg Config) (trace.Tracer, ShutdownFunc, error) {
	name := cfg.Exporter
	if name == "" {
		name = os.Getenv(EnvTracesExporter)
	}
	typ, err := ParseExporter(name)
	if err != nil {
		return nil, nil, err
	}

	var exporters []sdktrace.SpanExporter
	switch typ {
	case ExporterNone:
		return otel.Tracer(cfg.ServiceName), noShutdown, nil
	case ExporterConsole:
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, nil, err
		}
		exporters = append(exporters, exp)
	case ExporterOtlp:
		if exporters, err = newOtlpExporters(ctx); err != nil {
			return nil, nil, err
		}
	case ExporterFile:
		w, err := logsink.New(append([]logsink.Option{logsink.WithPrefix(cfg.ServiceName + "-traces")}, cfg.FileOptions...)...)
		if err != nil {
			return nil, nil, err
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, errors.Join(err, w.Close())
		}
		exporters = append(exporters, closingExporter{SpanExporter: exp, close: w.Close})
	}

	tp, err := newTracerProvider(cfg.ServiceName, exporters...)
	if err != nil {
		return nil, nil, err
	}
	tracer := tp.Tracer(cfg.ServiceName,
		trace.WithInstrumentationVersion(cfg.Version),
		trace.WithSchemaURL(semconv.SchemaURL))
	return tracer, tp.Shutdown, nil
}

// closingExporter closes the file writer once the exporter is shut down.
type closingExporter struct {
	sdktrace.SpanExporter
	close func() error
}

func (c closingExporter) Shutdown(ctx context.Context) error {
	return errors.Join(c.SpanExporter.Shutdown(ctx), c.close())
}

func newOtlpExporters(ctx context.Context) ([]sdktrace.SpanExporter, error) {
	// endpoints and headers come from the OTEL_EXPORTER_OTLP_* variables
	grpcExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}))
	if err != nil {
		return nil, err
	}
	httpExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}))
	if err != nil {
		return nil, errors.Join(err, grpcExporter.Shutdown(ctx))
	}
	return []sdktrace.SpanExporter{grpcExporter, httpExporter}, nil
}

func newTracerProvider(service string, exporters ...sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	own := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))
	res, err := resource.Merge(resource.Default(), own)
	if err != nil {
		if !errors.Is(err, resource.ErrSchemaURLConflict) {
			return nil, err
		}
		res = own
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
