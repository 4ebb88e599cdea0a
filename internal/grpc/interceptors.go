package grpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/scopectx/internal/boundary"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/transport"
)

// Interceptors propagate scoped contexts over gRPC. Server interceptors own
// one scope per call; client interceptors write a child of the caller's
// scope into the outgoing metadata.
type Interceptors struct {
	runner  *boundary.Runner
	mapper  *transport.HTTPMapper
	factory *operation.ChildFactory
	metrics *monitoring.Metrics
}

// NewInterceptors creates the interceptor set. metrics may be nil.
func NewInterceptors(runner *boundary.Runner, mapper *transport.HTTPMapper, factory *operation.ChildFactory, metrics *monitoring.Metrics) *Interceptors {
	return &Interceptors{runner: runner, mapper: mapper, factory: factory, metrics: metrics}
}

// ServerOptions returns the server options that install both server interceptors.
func (i *Interceptors) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(i.UnaryServer()),
		grpc.ChainStreamInterceptor(i.StreamServer()),
	}
}

// UnaryServer creates a unary server interceptor.
func (i *Interceptors) UnaryServer() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		var resp interface{}
		started := false

		err := i.runner.Run(ctx, boundary.KindGRPC, info.FullMethod, i.initFrom(ctx),
			func(ctx context.Context, _ *operation.Tracker) error {
				started = true
				if md, ok := i.responseMD(ctx); ok {
					_ = grpc.SetHeader(ctx, md)
				}
				var herr error
				resp, herr = handler(ctx, req)
				return herr
			},
		)
		err = i.toStatus(err, started)
		i.record(info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

// StreamServer creates a stream server interceptor.
func (i *Interceptors) StreamServer() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		started := false

		err := i.runner.Run(ss.Context(), boundary.KindGRPC, info.FullMethod, i.initFrom(ss.Context()),
			func(ctx context.Context, _ *operation.Tracker) error {
				started = true
				if md, ok := i.responseMD(ctx); ok {
					_ = ss.SetHeader(md)
				}
				return handler(srv, &scopedServerStream{ServerStream: ss, ctx: ctx})
			},
		)
		err = i.toStatus(err, started)
		i.record(info.FullMethod, err, time.Since(start))
		return err
	}
}

// scopedServerStream wraps grpc.ServerStream with the scoped context
type scopedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClient creates a client interceptor for calls to nodeID. An empty
// nodeID keeps the caller's node. Calls made outside a scope fail.
func (i *Interceptors) UnaryClient(nodeID string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, done, err := i.outgoing(ctx, nodeID)
		if err != nil {
			return err
		}
		defer done()
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClient creates a stream client interceptor for calls to nodeID.
func (i *Interceptors) StreamClient(nodeID string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, done, err := i.outgoing(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		defer done()
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func (i *Interceptors) initFrom(ctx context.Context) boundary.InitFunc {
	return func(sc *scope.Context) error {
		md, _ := metadata.FromIncomingContext(ctx)
		return sc.InitializeFrom(i.mapper.ExtractHeaders(headerFromMD(md), ctx))
	}
}

func (i *Interceptors) responseMD(ctx context.Context) (metadata.MD, bool) {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, false
	}
	h := http.Header{}
	if err := i.mapper.WriteResponseHeaders(h, sc); err != nil {
		return nil, false
	}
	return mdFromHeader(h), true
}

// outgoing derives the call's child scope and writes it into the outgoing
// metadata. done disposes the child once the call has been issued.
func (i *Interceptors) outgoing(ctx context.Context, nodeID string) (context.Context, func(), error) {
	child, err := i.factory.ForContext(ctx, nodeID)
	if err != nil {
		return nil, nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	h := http.Header{}
	if err := i.mapper.InjectHeaders(h, child); err != nil {
		child.MarkDisposed()
		return nil, nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return withOutgoing(ctx, mdFromHeader(h)), child.MarkDisposed, nil
}

// toStatus maps boundary failures to gRPC status errors. Handler errors
// pass through unchanged.
func (i *Interceptors) toStatus(err error, started bool) error {
	if err == nil {
		return nil
	}
	var perr *boundary.PanicError
	if errors.As(err, &perr) {
		return status.Error(codes.Internal, "internal error")
	}
	if started {
		return err
	}
	if scope.IsValidation(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (i *Interceptors) record(method string, err error, d time.Duration) {
	code := status.Code(err)
	if code != codes.OK {
		i.runner.Logger().Debug("gRPC call failed", zap.String("method", method), zap.Stringer("code", code))
	}
	if i.metrics != nil {
		i.metrics.RecordGRPCCall(method, code.String(), d)
	}
}
