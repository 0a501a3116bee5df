package api

import (
	"context"
	"strings"

	"thumbsup/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const inventoryServiceName = "thumbsup.inventory.v1.InventoryService"

const (
	methodListRides  = "/" + inventoryServiceName + "/ListRides"
	methodGetRide    = "/" + inventoryServiceName + "/GetRide"
	methodBook       = "/" + inventoryServiceName + "/Book"
	methodCancel     = "/" + inventoryServiceName + "/Cancel"
	methodDeleteRide = "/" + inventoryServiceName + "/DeleteRide"
)

// InventoryServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct so backends need no generated stubs.
type InventoryServer interface {
	ListRides(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteRide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(srv InventoryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRides", Handler: unaryHandler(methodListRides, InventoryServer.ListRides)},
		{MethodName: "GetRide", Handler: unaryHandler(methodGetRide, InventoryServer.GetRide)},
		{MethodName: "Book", Handler: unaryHandler(methodBook, InventoryServer.Book)},
		{MethodName: "Cancel", Handler: unaryHandler(methodCancel, InventoryServer.Cancel)},
		{MethodName: "DeleteRide", Handler: unaryHandler(methodDeleteRide, InventoryServer.DeleteRide)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "thumbsup/inventory/v1/inventory.proto",
}

// InventoryClient calls InventoryService over an existing connection.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) invoke(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) ListRides(ctx context.Context, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListRides, req, opts...)
}

func (c *InventoryClient) GetRide(ctx context.Context, rideID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetRide, map[string]any{"ride_id": rideID}, opts...)
}

func (c *InventoryClient) Book(ctx context.Context, rideID int64, seats int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodBook, map[string]any{"ride_id": rideID, "seats": seats}, opts...)
}

func (c *InventoryClient) Cancel(ctx context.Context, bookingID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCancel, map[string]any{"booking_id": bookingID}, opts...)
}

func (c *InventoryClient) DeleteRide(ctx context.Context, rideID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDeleteRide, map[string]any{"ride_id": rideID}, opts...)
}

// InventoryService implements InventoryServer on top of the domain services.
type InventoryService struct {
	rides     RideCatalog
	inventory Inventory
	logger    zerolog.Logger
}

func NewInventoryService(rides RideCatalog, inventory Inventory, logger *zerolog.Logger) *InventoryService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "grpc_inventory").Logger()
	}
	return &InventoryService{rides: rides, inventory: inventory, logger: l}
}

func (s *InventoryService) ListRides(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter := models.RideFilter{
		From:     stringField(req, "from"),
		To:       stringField(req, "to"),
		Date:     stringField(req, "date"),
		MinSeats: int(numberField(req, "min_seats")),
	}
	rides, err := s.rides.ListRides(ctx, filter)
	if err != nil {
		return nil, grpcError(err)
	}

	list := make([]any, 0, len(rides))
	for _, r := range rides {
		list = append(list, rideFields(r))
	}
	return newStruct(map[string]any{"rides": list})
}

func (s *InventoryService) GetRide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rideID, err := idField(req, "ride_id")
	if err != nil {
		return nil, err
	}
	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{"ride": rideFields(ride)})
}

func (s *InventoryService) Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rideID, err := idField(req, "ride_id")
	if err != nil {
		return nil, err
	}
	seats := int(numberField(req, "seats"))

	booking, remaining, err := s.inventory.Book(ctx, sessionFromContext(ctx), rideID, seats)
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{
		"booking":         bookingFields(booking),
		"seats_available": remaining,
	})
}

func (s *InventoryService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	bookingID, err := idField(req, "booking_id")
	if err != nil {
		return nil, err
	}

	booking, ride, err := s.inventory.Cancel(ctx, sessionFromContext(ctx), bookingID)
	if err != nil {
		return nil, grpcError(err)
	}
	out := map[string]any{
		"booking":   bookingFields(booking),
		"ride_gone": ride == nil,
	}
	if ride != nil {
		out["seats_available"] = ride.SeatsAvailable
	}
	return newStruct(out)
}

func (s *InventoryService) DeleteRide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rideID, err := idField(req, "ride_id")
	if err != nil {
		return nil, err
	}

	removed, err := s.inventory.DeleteRide(ctx, sessionFromContext(ctx), rideID)
	if err != nil {
		return nil, grpcError(err)
	}
	s.logger.Info().Int64("ride_id", rideID).Int("bookings_removed", len(removed)).Msg("ride deleted over grpc")
	return newStruct(map[string]any{"removed_bookings": len(removed)})
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func numberField(req *structpb.Struct, key string) float64 {
	if req == nil {
		return 0
	}
	return req.GetFields()[key].GetNumberValue()
}

func idField(req *structpb.Struct, key string) (int64, error) {
	v := numberField(req, key)
	if v < 1 || v != float64(int64(v)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return int64(v), nil
}

func rideFields(r *models.Ride) map[string]any {
	return map[string]any{
		"id":                 r.ID,
		"departure_location": r.DepartureLocation,
		"destination":        r.Destination,
		"departure_date":     r.DepartureDate,
		"departure_time":     r.DepartureTime,
		"seats_offered":      r.SeatsOffered,
		"seats_available":    r.SeatsAvailable,
		"price":              r.Price(),
		"price_cents":        r.PriceCents,
		"estimated_duration": r.EstimatedDuration,
		"estimated_distance": r.EstimatedDistance,
		"created_by":         r.CreatedBy,
		"creator_email":      r.CreatorEmail,
		"status":             r.Status,
	}
}

func bookingFields(b *models.Booking) map[string]any {
	return map[string]any{
		"id":                b.ID,
		"user_id":           b.UserID,
		"ride_id":           b.RideID,
		"seats":             b.Seats,
		"total_price":       b.TotalPrice(),
		"total_price_cents": b.TotalPriceCents,
		"booking_date":      b.BookingDate,
		"status":            b.Status,
	}
}
