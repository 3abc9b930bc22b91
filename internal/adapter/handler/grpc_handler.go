package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/core/service"
)

const ServiceName = "stationpick.v1.Station"

// jsonCodec carries the handler DTOs as JSON under the "json" content
// subtype, so clients must call with grpc.CallContentSubtype(CodecName).
type jsonCodec struct{}

const CodecName = "json"

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type StationServer interface {
	EnsureOrder(context.Context, *TrayRequest) (*Order, error)
	ReadyOrder(context.Context, *TrayRequest) (*Order, error)
	GetOrder(context.Context, *OrderIDRequest) (*Order, error)
	Release(context.Context, *OrderIDRequest) (*Empty, error)
	Pick(context.Context, *PickRequest) (*Transaction, error)
	Inbound(context.Context, *InboundRequest) (*Transaction, error)
	Locations(context.Context, *LocationsRequest) (*Snapshot, error)
	Reconciliation(context.Context, *ReconcileRequest) (*ReconcileReport, error)
	SapOrders(context.Context, *SapOrdersRequest) (*SapOrders, error)
	OrderLines(context.Context, *OrderLinesRequest) (*OrderLines, error)
	Refresh(context.Context, *Empty) (*service.SyncStatus, error)
	SyncStatus(context.Context, *Empty) (*service.SyncStatus, error)
}

type GRPCHandler struct {
	station Station
}

var _ StationServer = (*GRPCHandler)(nil)

func NewGRPCHandler(station Station) *GRPCHandler {
	return &GRPCHandler{station: station}
}

func RegisterStationServer(s grpc.ServiceRegistrar, srv StationServer) {
	s.RegisterService(&stationServiceDesc, srv)
}

var stationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("EnsureOrder", StationServer.EnsureOrder),
		unary("ReadyOrder", StationServer.ReadyOrder),
		unary("GetOrder", StationServer.GetOrder),
		unary("Release", StationServer.Release),
		unary("Pick", StationServer.Pick),
		unary("Inbound", StationServer.Inbound),
		unary("Locations", StationServer.Locations),
		unary("Reconciliation", StationServer.Reconciliation),
		unary("SapOrders", StationServer.SapOrders),
		unary("OrderLines", StationServer.OrderLines),
		unary("Refresh", StationServer.Refresh),
		unary("SyncStatus", StationServer.SyncStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stationpick/v1/station.proto",
}

func unary[Req, Resp any](method string, fn func(StationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(StationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(StationServer), ctx, req.(*Req))
			})
		},
	}
}

func (h *GRPCHandler) EnsureOrder(ctx context.Context, req *TrayRequest) (*Order, error) {
	order, err := h.station.EnsureOrder(ctx, req.tray())
	if err != nil {
		return nil, toStatus(err)
	}
	out := toOrder(order)
	return &out, nil
}

func (h *GRPCHandler) ReadyOrder(ctx context.Context, req *TrayRequest) (*Order, error) {
	order, err := h.station.ReadyOrder(ctx, req.tray())
	if err != nil {
		return nil, toStatus(err)
	}
	out := toOrder(order)
	return &out, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderIDRequest) (*Order, error) {
	order, err := h.station.Order(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toOrder(order)
	return &out, nil
}

func (h *GRPCHandler) Release(ctx context.Context, req *OrderIDRequest) (*Empty, error) {
	if err := h.station.Release(ctx, req.OrderID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) Pick(ctx context.Context, req *PickRequest) (*Transaction, error) {
	txn, err := h.station.Pick(ctx, req.toService())
	if err != nil {
		return nil, toStatus(err)
	}
	out := toTransaction(txn)
	return &out, nil
}

func (h *GRPCHandler) Inbound(ctx context.Context, req *InboundRequest) (*Transaction, error) {
	txn, err := h.station.Inbound(ctx, req.toService())
	if err != nil {
		return nil, toStatus(err)
	}
	out := toTransaction(txn)
	return &out, nil
}

func (h *GRPCHandler) Locations(ctx context.Context, req *LocationsRequest) (*Snapshot, error) {
	snapshot, err := h.station.Locations(ctx, req.Material)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toSnapshot(snapshot)
	return &out, nil
}

func (h *GRPCHandler) Reconciliation(ctx context.Context, req *ReconcileRequest) (*ReconcileReport, error) {
	report, err := h.station.Reconciliation(ctx, domain.ReconcileQuery{
		Material: req.Material,
		Status:   domain.ReconcileStatus(req.Status),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := toReport(report)
	return &out, nil
}

func (h *GRPCHandler) SapOrders(ctx context.Context, req *SapOrdersRequest) (*SapOrders, error) {
	orders, err := h.station.SapOrders(ctx, req.Status)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toSapOrders(orders)
	return &out, nil
}

func (h *GRPCHandler) OrderLines(ctx context.Context, req *OrderLinesRequest) (*OrderLines, error) {
	lines, err := h.station.OrderLines(ctx, req.OrderRef)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toOrderLines(lines)
	return &out, nil
}

func (h *GRPCHandler) Refresh(ctx context.Context, _ *Empty) (*service.SyncStatus, error) {
	if err := h.station.Refresh(ctx); err != nil {
		return nil, toStatus(err)
	}
	st := h.station.SyncStatus()
	return &st, nil
}

func (h *GRPCHandler) SyncStatus(ctx context.Context, _ *Empty) (*service.SyncStatus, error) {
	st := h.station.SyncStatus()
	return &st, nil
}

func toStatus(err error) error {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.KindTransient:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// fromStatus turns a status error back into the matching domain sentinel.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kind error
	switch st.Code() {
	case codes.InvalidArgument:
		kind = domain.ErrValidation
	case codes.NotFound:
		kind = domain.ErrNotFound
	case codes.FailedPrecondition:
		kind = domain.ErrConflict
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = domain.ErrTransient
	default:
		return err
	}
	return fmt.Errorf("%w: %s", kind, st.Message())
}

// GRPCClient calls a remote Station over the JSON codec.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *GRPCClient) EnsureOrder(ctx context.Context, req TrayRequest) (Order, error) {
	var out Order
	err := c.invoke(ctx, "EnsureOrder", &req, &out)
	return out, err
}

func (c *GRPCClient) ReadyOrder(ctx context.Context, req TrayRequest) (Order, error) {
	var out Order
	err := c.invoke(ctx, "ReadyOrder", &req, &out)
	return out, err
}

func (c *GRPCClient) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var out Order
	err := c.invoke(ctx, "GetOrder", &OrderIDRequest{OrderID: orderID}, &out)
	return out, err
}

func (c *GRPCClient) Release(ctx context.Context, orderID string) error {
	return c.invoke(ctx, "Release", &OrderIDRequest{OrderID: orderID}, &Empty{})
}

func (c *GRPCClient) Pick(ctx context.Context, req PickRequest) (Transaction, error) {
	var out Transaction
	err := c.invoke(ctx, "Pick", &req, &out)
	return out, err
}

func (c *GRPCClient) Inbound(ctx context.Context, req InboundRequest) (Transaction, error) {
	var out Transaction
	err := c.invoke(ctx, "Inbound", &req, &out)
	return out, err
}

func (c *GRPCClient) Locations(ctx context.Context, material string) (Snapshot, error) {
	var out Snapshot
	err := c.invoke(ctx, "Locations", &LocationsRequest{Material: material}, &out)
	return out, err
}

func (c *GRPCClient) Reconciliation(ctx context.Context, req ReconcileRequest) (ReconcileReport, error) {
	var out ReconcileReport
	err := c.invoke(ctx, "Reconciliation", &req, &out)
	return out, err
}

func (c *GRPCClient) SapOrders(ctx context.Context, status string) ([]SapOrder, error) {
	var out SapOrders
	err := c.invoke(ctx, "SapOrders", &SapOrdersRequest{Status: status}, &out)
	return out.Orders, err
}

func (c *GRPCClient) OrderLines(ctx context.Context, orderRef string) ([]OrderLine, error) {
	var out OrderLines
	err := c.invoke(ctx, "OrderLines", &OrderLinesRequest{OrderRef: orderRef}, &out)
	return out.Lines, err
}

func (c *GRPCClient) Refresh(ctx context.Context) (service.SyncStatus, error) {
	var out service.SyncStatus
	err := c.invoke(ctx, "Refresh", &Empty{}, &out)
	return out, err
}

func (c *GRPCClient) SyncStatus(ctx context.Context) (service.SyncStatus, error) {
	var out service.SyncStatus
	err := c.invoke(ctx, "SyncStatus", &Empty{}, &out)
	return out, err
}
