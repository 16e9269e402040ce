package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// The ledger service speaks JSON over gRPC. Clients select the codec with
// grpc.CallContentSubtype(CodecName); NewLedgerClient does so for every call.

const (
	CodecName = "json"

	ledgerServiceName = "stockledger.v1.LedgerService"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type LedgerServer interface {
	ReceiveInbound(context.Context, *ReceiveInboundRequest) (*ReceiptResponse, error)
	InspectLot(context.Context, *InspectLotRequest) (*StockLotResponse, error)
	FulfillOutbound(context.Context, *FulfillOutboundRequest) (*OutboundOrderResponse, error)
	GetProductQuantities(context.Context, *ProductQuantitiesRequest) (*ProductQuantitiesResponse, error)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ReceiveInbound",
			Handler:    unaryHandler("ReceiveInbound", LedgerServer.ReceiveInbound),
		},
		{
			MethodName: "InspectLot",
			Handler:    unaryHandler("InspectLot", LedgerServer.InspectLot),
		},
		{
			MethodName: "FulfillOutbound",
			Handler:    unaryHandler("FulfillOutbound", LedgerServer.FulfillOutbound),
		},
		{
			MethodName: "GetProductQuantities",
			Handler:    unaryHandler("GetProductQuantities", LedgerServer.GetProductQuantities),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ledgerServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerClient is the client side of LedgerServiceDesc.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) ReceiveInbound(ctx context.Context, in *ReceiveInboundRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	out := new(ReceiptResponse)
	if err := c.invoke(ctx, "ReceiveInbound", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) InspectLot(ctx context.Context, in *InspectLotRequest, opts ...grpc.CallOption) (*StockLotResponse, error) {
	out := new(StockLotResponse)
	if err := c.invoke(ctx, "InspectLot", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) FulfillOutbound(ctx context.Context, in *FulfillOutboundRequest, opts ...grpc.CallOption) (*OutboundOrderResponse, error) {
	out := new(OutboundOrderResponse)
	if err := c.invoke(ctx, "FulfillOutbound", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetProductQuantities(ctx context.Context, in *ProductQuantitiesRequest, opts ...grpc.CallOption) (*ProductQuantitiesResponse, error) {
	out := new(ProductQuantitiesResponse)
	if err := c.invoke(ctx, "GetProductQuantities", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}
