package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names of the decision API. Messages are google.protobuf.Struct:
// the request carries {"context": <record>}, each response is one outcome record.
const (
	ServiceName    = "verdict.v1.DecisionService"
	EvaluateMethod = "/" + ServiceName + "/Evaluate"
)

// DecisionServer is the server API for the decision service.
type DecisionServer interface {
	Evaluate(*structpb.Struct, DecisionService_EvaluateServer) error
}

// DecisionService_EvaluateServer is the server side of the Evaluate stream.
type DecisionService_EvaluateServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type evaluateServer struct {
	grpc.ServerStream
}

func (s *evaluateServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func evaluateHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DecisionServer).Evaluate(req, &evaluateServer{stream})
}

// DecisionServiceDesc describes the decision service for grpc.Server registration.
var DecisionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Evaluate",
			Handler:       evaluateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "verdict/v1/decision.proto",
}

// RegisterDecisionServer registers srv with s.
func RegisterDecisionServer(s grpc.ServiceRegistrar, srv DecisionServer) {
	s.RegisterService(&DecisionServiceDesc, srv)
}

// DecisionClient is the client API for the decision service.
type DecisionClient struct {
	cc grpc.ClientConnInterface
}

// NewDecisionClient creates a client over cc.
func NewDecisionClient(cc grpc.ClientConnInterface) *DecisionClient {
	return &DecisionClient{cc: cc}
}

// DecisionService_EvaluateClient is the client side of the Evaluate stream.
type DecisionService_EvaluateClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type evaluateClient struct {
	grpc.ClientStream
}

func (c *evaluateClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Evaluate opens an Evaluate stream for req. Records are read with Recv until io.EOF.
func (c *DecisionClient) Evaluate(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (DecisionService_EvaluateClient, error) {
	stream, err := c.cc.NewStream(ctx, &DecisionServiceDesc.Streams[0], EvaluateMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &evaluateClient{stream}
	// io.EOF means the server already ended the stream; Recv reports its status.
	if err := x.ClientStream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
