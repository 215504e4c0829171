package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

const ledgerServiceName = "stockroom.v1.LedgerService"

// LedgerServer is served over gRPC with google.protobuf.Struct messages so
// internal callers need no generated stubs.
type LedgerServer interface {
	ApplyMovement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WatchCollection(req *structpb.Struct, stream grpc.ServerStream) error
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyMovement", Handler: applyMovementHandler},
		{MethodName: "GetItem", Handler: getItemHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchCollection", Handler: watchCollectionHandler, ServerStreams: true},
	},
	Metadata: "stockroom/v1/ledger.proto",
}

// ChangeWatcher streams change notices for one collection.
type ChangeWatcher interface {
	Watch(ctx context.Context, collection string) (<-chan domain.Change, error)
}

type GRPCHandler struct {
	ledger  *service.LedgerService
	items   *service.ItemService
	watcher ChangeWatcher
}

func NewGRPCHandler(ledger *service.LedgerService, items *service.ItemService, watcher ChangeWatcher) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, items: items, watcher: watcher}
}

// Register mounts the ledger service and the standard health service on s.
func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&LedgerServiceDesc, h)

	hs := health.NewServer()
	hs.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}

func (h *GRPCHandler) ApplyMovement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	quantity, err := intField(f, "quantity")
	if err != nil {
		return nil, grpcError(err)
	}
	intent := domain.Intent{
		Type:            domain.MovementType(stringField(f, "type")),
		SKU:             stringField(f, "sku"),
		Quantity:        quantity,
		FromLocation:    stringField(f, "fromLocation"),
		ToLocation:      stringField(f, "toLocation"),
		UserID:          stringField(f, "userId"),
		Notes:           stringField(f, "notes"),
		Status:          domain.MovementStatus(stringField(f, "status")),
		Reference:       stringField(f, "reference"),
		IdempotencyKey:  stringField(f, "idempotencyKey"),
		CreateIfMissing: f["createIfMissing"].GetBoolValue(),
		ItemName:        stringField(f, "itemName"),
	}

	res, err := h.ledger.Apply(ctx, intent)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(toMovementResponse(res))
}

func (h *GRPCHandler) GetItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	var (
		item *domain.InventoryItem
		err  error
	)
	switch {
	case stringField(f, "sku") != "":
		item, err = h.items.GetItemBySKU(ctx, stringField(f, "sku"))
	case stringField(f, "id") != "":
		item, err = h.items.GetItem(ctx, stringField(f, "id"))
	default:
		return nil, status.Error(codes.InvalidArgument, "sku or id is required")
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(item)
}

// WatchCollection sends a message per change to the requested collection
// until the client goes away.
func (h *GRPCHandler) WatchCollection(req *structpb.Struct, stream grpc.ServerStream) error {
	collection := stringField(req.GetFields(), "collection")
	switch collection {
	case domain.CollectionInventory, domain.CollectionMovements, domain.CollectionOrders, domain.CollectionNotifications:
	default:
		return status.Errorf(codes.InvalidArgument, "unknown collection %q", collection)
	}

	changes, err := h.watcher.Watch(stream.Context(), collection)
	if err != nil {
		return status.Errorf(codes.Unavailable, "subscribe: %v", err)
	}
	for change := range changes {
		msg, err := toStruct(change)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

// LoggingInterceptor logs every unary call with its outcome.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

func applyMovementHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).ApplyMovement(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerServiceName + "/ApplyMovement"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).ApplyMovement(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getItemHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetItem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerServiceName + "/GetItem"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).GetItem(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchCollectionHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LedgerServer).WatchCollection(in, stream)
}

func grpcError(err error) error {
	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrMovementNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateDelivery), errors.Is(err, domain.ErrDuplicateSKU):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrCommitConflict):
		return status.Error(codes.Aborted, err.Error())
	case domain.IsPersistence(err):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return fields[key].GetStringValue()
}

// intField reads a whole number. Struct numbers are doubles, so fractions
// and values beyond int range are rejected rather than converted.
func intField(fields map[string]*structpb.Value, key string) (int, error) {
	v := fields[key].GetNumberValue()
	if v != math.Trunc(v) || v < math.MinInt || v >= math.MaxInt {
		return 0, &domain.ValidationError{Field: key, Message: key + " must be a whole number"}
	}
	return int(v), nil
}

// toStruct converts v through its JSON form so responses share field names
// with the HTTP API.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}
