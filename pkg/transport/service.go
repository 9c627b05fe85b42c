/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package transport

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	ServiceName   = "hodei.execution.v1.Worker"
	connectMethod = "/hodei.execution.v1.Worker/Connect"

	// Transport-level defaults.
	KeepaliveTime          = 30 * time.Second
	KeepaliveTimeout       = 5 * time.Second
	MaxConnectionAge       = 300 * time.Second
	MaxConnectionAgeGrace  = 60 * time.Second
	MaxInboundMessageBytes = 4 << 20
	MaxMetadataBytes       = 8 << 10
)

// ConnectServer is the orchestrator side of the bidirectional stream.
type ConnectServer interface {
	Connect(ConnectStream) error
}

// ConnectStream is the server view of one worker stream.
type ConnectStream interface {
	Send(*OrchestratorMessage) error
	Recv() (*WorkerMessage, error)
	Context() context.Context
}

// ClientStream is the worker view of the stream.
type ClientStream interface {
	Send(*WorkerMessage) error
	Recv() (*OrchestratorMessage, error)
	CloseSend() error
	Context() context.Context
}

// ServiceDesc describes the Worker service. The single Connect stream
// multiplexes registration, assignments, status, logs, and results.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConnectServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Connect",
		Handler:       connectHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "worker_service.cbor",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ConnectServer).Connect(&connectServerStream{stream})
}

type connectServerStream struct {
	grpc.ServerStream
}

func (s *connectServerStream) Send(m *OrchestratorMessage) error { return s.SendMsg(m) }

func (s *connectServerStream) Recv() (*WorkerMessage, error) {
	m := new(WorkerMessage)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ServerOptions returns the grpc server options carrying the transport
// defaults: keepalive probing, connection age bounds, and frame limits.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:                  KeepaliveTime,
			Timeout:               KeepaliveTimeout,
			MaxConnectionAge:      MaxConnectionAge,
			MaxConnectionAgeGrace: MaxConnectionAgeGrace,
		}),
		grpc.MaxRecvMsgSize(MaxInboundMessageBytes),
		grpc.MaxHeaderListSize(MaxMetadataBytes),
	}
}

// NewClientConn dials the orchestrator endpoint with the matching client-side
// transport defaults.
func NewClientConn(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                KeepaliveTime,
			Timeout:             KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(MaxInboundMessageBytes),
		),
	)
}

// Connect opens the bidirectional stream on an established connection.
func Connect(ctx context.Context, conn *grpc.ClientConn) (ClientStream, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], connectMethod)
	if err != nil {
		return nil, err
	}
	return &connectClientStream{stream}, nil
}

type connectClientStream struct {
	grpc.ClientStream
}

func (s *connectClientStream) Send(m *WorkerMessage) error { return s.SendMsg(m) }

func (s *connectClientStream) Recv() (*OrchestratorMessage, error) {
	m := new(OrchestratorMessage)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
