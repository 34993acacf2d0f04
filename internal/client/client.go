// Package client is the gRPC client for a session daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/detox/internal/api"
	"github.com/matheus3301/detox/internal/messaging"
)

// Client wraps a connection to a session daemon's Unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// New creates a client for the daemon listening on socketPath. The
// connection is established lazily on the first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the daemon status. The raw Struct is returned alongside for
// JSON output.
func (c *Client) Status(ctx context.Context) (*api.StatusReport, *structpb.Struct, error) {
	raw, err := c.invoke(ctx, api.MethodGetStatus, &emptypb.Empty{})
	if err != nil {
		return nil, nil, err
	}
	var r api.StatusReport
	return &r, raw, api.FromStruct(raw, &r)
}

// Contacts lists contacts matching query.
func (c *Client) Contacts(ctx context.Context, query string) (*api.ContactList, *structpb.Struct, error) {
	raw, err := c.invoke(ctx, api.MethodListContacts, wrapperspb.String(query))
	if err != nil {
		return nil, nil, err
	}
	var l api.ContactList
	return &l, raw, api.FromStruct(raw, &l)
}

// Open opens the conversation with peerID.
func (c *Client) Open(ctx context.Context, peerID string) (*messaging.Snapshot, *structpb.Struct, error) {
	return c.snapshot(ctx, api.MethodOpenConversation, wrapperspb.String(peerID))
}

// Window returns the open conversation.
func (c *Client) Window(ctx context.Context) (*messaging.Snapshot, *structpb.Struct, error) {
	return c.snapshot(ctx, api.MethodGetWindow, &emptypb.Empty{})
}

func (c *Client) snapshot(ctx context.Context, method string, in any) (*messaging.Snapshot, *structpb.Struct, error) {
	raw, err := c.invoke(ctx, method, in)
	if err != nil {
		return nil, nil, err
	}
	var s messaging.Snapshot
	return &s, raw, api.FromStruct(raw, &s)
}

// CloseConversation closes the open conversation.
func (c *Client) CloseConversation(ctx context.Context) error {
	return c.conn.Invoke(ctx, api.FullMethod(api.MethodCloseConversation), &emptypb.Empty{}, &emptypb.Empty{})
}

// Send sends text into the open conversation.
func (c *Client) Send(ctx context.Context, text string) (*messaging.ChatMessage, *structpb.Struct, error) {
	return c.message(ctx, api.MethodSend, text)
}

// Retry resends the failed entry with localID.
func (c *Client) Retry(ctx context.Context, localID string) (*messaging.ChatMessage, *structpb.Struct, error) {
	return c.message(ctx, api.MethodRetry, localID)
}

func (c *Client) message(ctx context.Context, method, arg string) (*messaging.ChatMessage, *structpb.Struct, error) {
	raw, err := c.invoke(ctx, method, wrapperspb.String(arg))
	if err != nil {
		return nil, nil, err
	}
	var m messaging.ChatMessage
	return &m, raw, api.FromStruct(raw, &m)
}

// Watch streams conversation events to fn until ctx is done or fn returns an
// error.
func (c *Client) Watch(ctx context.Context, fn func(*structpb.Struct) error) error {
	desc := &api.ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(api.MethodWatchConversation))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(out); err != nil {
			return err
		}
	}
}
