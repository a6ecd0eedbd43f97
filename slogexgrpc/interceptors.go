// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogexgrpc

import (
	"context"
	"net"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/pjscruggs/slogex"
)

// UnaryServerInterceptor attaches engine and the caller's invocation to
// unary RPC contexts.
func UnaryServerInterceptor(engine *slogex.Engine, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(attach(ctx, engine, cfg), req)
	}
}

// StreamServerInterceptor attaches engine and the caller's invocation to
// streaming RPC contexts.
func StreamServerInterceptor(engine *slogex.Engine, opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)

	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &serverStream{ServerStream: ss, ctx: attach(ss.Context(), engine, cfg)})
	}
}

// serverStream overrides the context of a grpc.ServerStream.
type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the enriched stream context.
func (s *serverStream) Context() context.Context { return s.ctx }

// UnaryClientInterceptor injects the active trace context into outgoing
// metadata.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		return invoker(injectOutgoing(ctx, cfg), method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor injects the active trace context into outgoing
// metadata of streaming RPCs.
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(injectOutgoing(ctx, cfg), desc, cc, method, callOpts...)
	}
}

// ServerOptions returns grpc.ServerOptions that install the otelgrpc stats
// handler (unless disabled) and both server interceptors.
func ServerOptions(engine *slogex.Engine, opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption

	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}

	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(engine, opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(engine, opts...)),
	)
	return serverOpts
}

// DialOptions returns grpc.DialOptions that install the otelgrpc stats
// handler (unless disabled) and both client interceptors.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption

	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}

	dialOpts = append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(opts...)),
	)
	return dialOpts
}

func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagatorsSet && cfg.propagators != nil {
		opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
	}
	for _, f := range cfg.filters {
		opts = append(opts, otelgrpc.WithFilter(f))
	}
	return opts
}

// attach extracts trace context and stores the engine and invocation on ctx.
func attach(ctx context.Context, engine *slogex.Engine, cfg *config) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = ensureServerSpanContext(ctx, md, cfg)
	ctx = slogex.ContextWithEngine(ctx, engine)
	return slogex.ContextWithInvocation(ctx, invocation(ctx, md, cfg))
}

// invocation describes the caller of the RPC on ctx.
func invocation(ctx context.Context, md metadata.MD, cfg *config) slogex.Invocation {
	inv := slogex.Invocation{TraceID: slogex.TraceID(ctx)}
	if addr, ok := peerAddress(ctx); ok {
		inv.ClientAddress = addr
	}
	if cfg.userKey != "" {
		inv.UserID = firstValue(md, cfg.userKey)
	}
	if cfg.connectionKey != "" {
		inv.ConnectionID = firstValue(md, cfg.connectionKey)
	}
	if inv.ConnectionID == "" {
		inv.ConnectionID = uuid.NewString()
	}
	if cfg.forwardedForKey != "" {
		inv.ForwardedFor = strings.TrimSpace(strings.Join(md.Get(cfg.forwardedForKey), ", "))
	}
	return inv
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func peerAddress(ctx context.Context) (string, bool) {
	pr, ok := peer.FromContext(ctx)
	if !ok || pr == nil || pr.Addr == nil {
		return "", false
	}
	addr := pr.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host, true
	}
	return addr, true
}

// metadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type metadataCarrier struct {
	metadata.MD
}

// Get returns the first value for the provided metadata key.
func (mc metadataCarrier) Get(key string) string {
	values := mc.MD.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Set stores the value under the provided metadata key.
func (mc metadataCarrier) Set(key string, value string) {
	mc.MD.Set(key, value)
}

// Keys reports all metadata keys present in the carrier.
func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc.MD))
	for k := range mc.MD {
		keys = append(keys, k)
	}
	return keys
}

func (cfg *config) propagator() propagation.TextMapPropagator {
	if cfg.propagatorsSet {
		return cfg.propagators
	}
	return otel.GetTextMapPropagator()
}

// ensureServerSpanContext extracts a remote span context from incoming
// metadata when ctx has none.
func ensureServerSpanContext(ctx context.Context, md metadata.MD, cfg *config) context.Context {
	if !cfg.propagateTrace || md == nil || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	p := cfg.propagator()
	if p == nil {
		return ctx
	}
	extracted := p.Extract(ctx, metadataCarrier{md})
	if !trace.SpanContextFromContext(extracted).IsValid() {
		return ctx
	}
	return extracted
}

// injectOutgoing copies the active trace context into outgoing metadata.
func injectOutgoing(ctx context.Context, cfg *config) context.Context {
	if !cfg.propagateTrace || !trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	p := cfg.propagator()
	if p == nil {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	p.Inject(ctx, metadataCarrier{md})
	return metadata.NewOutgoingContext(ctx, md)
}
