package adminrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client calls MigrationControl on a hotswapd instance.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// StageRequest names a registry engine and optional canary overrides.
type StageRequest struct {
	Engine   string
	Name     string
	Version  string
	FailRate float64
}

// #endregion client-struct

// #region constructor
// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region calls
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "Status", &emptypb.Empty{})
}

func (c *Client) Stage(ctx context.Context, req StageRequest) (map[string]any, error) {
	in, err := structpb.NewStruct(map[string]any{
		"engine":    req.Engine,
		"name":      req.Name,
		"version":   req.Version,
		"fail_rate": req.FailRate,
	})
	if err != nil {
		return nil, fmt.Errorf("stage request: %w", err)
	}
	return c.call(ctx, "Stage", in)
}

func (c *Client) Start(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "Start", &emptypb.Empty{})
}

func (c *Client) Advance(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "Advance", &emptypb.Empty{})
}

func (c *Client) Rollback(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "Rollback", &emptypb.Empty{})
}

// call returns the raw gRPC status error so callers can inspect its code.
func (c *Client) call(ctx context.Context, method string, in proto.Message) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// #endregion calls
