// Package grpc carries scoped contexts across gRPC calls.
//
// Server interceptors open one scope per call, initialized from the incoming
// metadata with the same keys as the HTTP headers (x-correlation-id,
// traceparent, baggage, x-baggage-*). Client interceptors derive a child of
// the caller's scope and write it into the outgoing metadata.
//
// Example Usage:
//
//	ic := grpc.NewInterceptors(runner, mapper, factory, metrics)
//	srv := googlegrpc.NewServer(ic.ServerOptions()...)
//	healthpb.RegisterHealthServer(srv, grpc.NewHealthServer(aggregator))
//
//	conn, err := grpc.NewClient("ledger:50051", "ledger", ic)
package grpc
