package capture

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// CaptureMethod is the camera service's unary capture RPC. The request is a
// google.protobuf.Struct, the reply google.protobuf.Empty.
const CaptureMethod = "/aiscam.camera.v1.Camera/CaptureDue"

// GRPCSink forwards capture requests to the camera controller.
type GRPCSink struct {
	conn *grpc.ClientConn
}

func NewGRPCSink(addr string, opts ...grpc.DialOption) (*GRPCSink, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("camera client %s: %w", addr, err)
	}
	return &GRPCSink{conn: conn}, nil
}

func (g *GRPCSink) Name() string { return "camera" }

func (g *GRPCSink) Send(ctx context.Context, req Request) error {
	in, err := req.Struct()
	if err != nil {
		return fmt.Errorf("encode capture %s: %w", req.ID, err)
	}
	if err := g.conn.Invoke(ctx, CaptureMethod, in, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("camera CaptureDue %s: %w", req.ID, err)
	}
	return nil
}

func (g *GRPCSink) Close() error {
	return g.conn.Close()
}
