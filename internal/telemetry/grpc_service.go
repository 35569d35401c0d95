package telemetry

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName    = "odrive.telemetry.v1.TelemetryService"
	streamMethod   = "/" + serviceName + "/Stream"
	snapshotMethod = "/" + serviceName + "/Snapshot"
)

// TelemetryServer is the server API of the telemetry gRPC service.
//
//	Stream({consumer})   -> stream {consumer, tick, timestamp, values}
//	Snapshot({paths})    -> {connected, values}
type TelemetryServer interface {
	Stream(req *structpb.Struct, stream grpc.ServerStream) error
	Snapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "odrive/telemetry/v1/telemetry.proto",
}

func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).Snapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TelemetryServer).Stream(in, stream)
}

// TelemetryService serves the store and the streamer over gRPC.
type TelemetryService struct {
	streamer *Streamer
	sync     *Synchronizer
}

func NewTelemetryService(streamer *Streamer, synchronizer *Synchronizer) *TelemetryService {
	return &TelemetryService{
		streamer: streamer,
		sync:     synchronizer,
	}
}

func (s *TelemetryService) Stream(req *structpb.Struct, stream grpc.ServerStream) error {
	consumer := req.GetFields()["consumer"].GetStringValue()

	id, ch := s.streamer.Subscribe(consumer)
	defer s.streamer.Unsubscribe(id)

	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return nil
			}

			msg, err := updateStruct(u)
			if err != nil {
				return status.Errorf(codes.Internal, "encode update: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *TelemetryService) Snapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var paths []string
	for _, v := range req.GetFields()["paths"].GetListValue().GetValues() {
		if p := v.GetStringValue(); p != "" {
			paths = append(paths, p)
		}
	}

	values := make(map[string]any)
	for k, v := range s.sync.Store().Values(paths) {
		values[k] = plain(v)
	}

	out, err := structpb.NewStruct(map[string]any{
		"connected": s.sync.IsConnected(),
		"values":    values,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return out, nil
}

func updateStruct(u *Update) (*structpb.Struct, error) {
	values := make(map[string]any, len(u.Values))
	for k, v := range u.Values {
		values[k] = plain(v)
	}
	return structpb.NewStruct(map[string]any{
		"consumer":  u.Consumer,
		"tick":      float64(u.Tick),
		"timestamp": u.Timestamp.Format(time.RFC3339Nano),
		"values":    values,
	})
}

// plain converts decoded values into types structpb accepts. Protobuf
// doubles carry infinities natively.
func plain(v any) any {
	switch x := v.(type) {
	case Marker:
		return string(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	}
	return v
}

// TelemetryClient is a thin client for the service.
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

func (c *TelemetryClient) Snapshot(ctx context.Context, paths []string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	list := make([]any, len(paths))
	for i, p := range paths {
		list[i] = p
	}
	in, err := structpb.NewStruct(map[string]any{"paths": list})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, snapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream opens a subscription; call RecvMsg with a *structpb.Struct.
func (c *TelemetryClient) Stream(ctx context.Context, consumer string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &TelemetryServiceDesc.Streams[0], streamMethod, opts...)
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"consumer": consumer})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
