// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trace

import (
	"context"
	"time"

	"github.com/ava-labs/avalanchego/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	DefaultEndpoint = "http://localhost:9411/api/v2/spans"

	exportTimeout = 10 * time.Second
	// Must exceed [exportTimeout] so in-flight exports finish first.
	shutdownTimeout = 15 * time.Second
)

type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Fraction of traces to sample. >= 1 always samples, <= 0 never does.
	TraceSampleRate float64 `json:"traceSampleRate" yaml:"traceSampleRate"`

	// Zipkin collector. Defaults to [DefaultEndpoint].
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	AppName string `json:"appName" yaml:"appName"`
	Agent   string `json:"agent"   yaml:"agent"`
	Version string `json:"version" yaml:"version"`
	ChainID string `json:"chainId" yaml:"chainId"`
}

type tracer struct {
	oteltrace.Tracer

	tp *sdktrace.TracerProvider
}

func (t *tracer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return t.tp.Shutdown(ctx)
}

// New returns a zipkin-backed tracer, or a no-op tracer when tracing is
// disabled.
func New(config *Config) (trace.Tracer, error) {
	if !config.Enabled {
		return trace.Noop, nil
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	exporter, err := zipkin.New(endpoint)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(exportTimeout)),
		sdktrace.WithResource(
			resource.NewWithAttributes(
				semconv.SchemaURL,
				attribute.String("version", config.Version),
				attribute.String("chain", config.ChainID),
				semconv.ServiceNameKey.String(config.Agent),
			),
		),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.TraceSampleRate)),
	)
	return &tracer{
		Tracer: tp.Tracer(config.AppName),
		tp:     tp,
	}, nil
}
