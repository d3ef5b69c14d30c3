package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote GradingService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call sends fields to method and returns the response document.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportResults returns the workbook bytes for jobIDs (all jobs when empty).
func (c *Client) ExportResults(ctx context.Context, jobIDs []string, opts ...grpc.CallOption) ([]byte, error) {
	ids := make([]any, 0, len(jobIDs))
	for _, id := range jobIDs {
		ids = append(ids, id)
	}
	in, err := structpb.NewStruct(map[string]any{"job_ids": ids})
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+MethodExportResults, in, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
