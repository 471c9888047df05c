package handlers

import (
	"context"
	"fmt"
	"sort"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/services/authorization"
	"github.com/eddy-backend/eddy/internal/services/coercion"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// OperationServiceName is the gRPC service exposing the synthesized operations
const OperationServiceName = "eddy.v1.Operations"

// OperationServer dispatches an operation call by its method name
type OperationServer interface {
	Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

type operationKind int

const (
	opGet operationKind = iota
	opGetAll
	opCreate
	opUpdate
	opDelete
)

var kindRequirements = map[operationKind]authorization.Requirement{
	opGet:    authorization.RequirementRead,
	opGetAll: authorization.RequirementList,
	opCreate: authorization.RequirementCreate,
	opUpdate: authorization.RequirementUpdate,
	opDelete: authorization.RequirementDelete,
}

type boundOperation struct {
	set  *synthesizer.OperationSet
	kind operationKind
}

// admit applies the entity-level rules before the request fields are read,
// so missing credentials are reported ahead of malformed arguments
func (o boundOperation) admit(ctx context.Context, method string) error {
	decision := authorization.Authorize(entities.PrincipalFromContext(ctx), kindRequirements[o.kind], o.set.Schema, nil)
	return entities.WithOp(decision.Err(o.set.Schema.Name), method)
}

// OperationService serves every synthesized operation as one unary gRPC method.
// Requests and responses are google.protobuf.Struct messages.
type OperationService struct {
	operations map[string]boundOperation
	logger     *zap.Logger
}

var _ OperationServer = (*OperationService)(nil)

// NewOperationService creates a service over the given operation sets
func NewOperationService(sets []*synthesizer.OperationSet, logger *zap.Logger) (*OperationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OperationService{
		operations: make(map[string]boundOperation),
		logger:     logger,
	}
	for _, set := range sets {
		names := set.Names()
		for name, kind := range map[string]operationKind{
			names.Get:    opGet,
			names.GetAll: opGetAll,
			names.Create: opCreate,
			names.Update: opUpdate,
			names.Delete: opDelete,
		} {
			if _, exists := s.operations[name]; exists {
				return nil, fmt.Errorf("operation %s is defined twice", name)
			}
			s.operations[name] = boundOperation{set: set, kind: kind}
		}
	}
	return s, nil
}

// Methods returns the operation names in sorted order
func (s *OperationService) Methods() []string {
	names := make([]string, 0, len(s.operations))
	for name := range s.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceDesc builds the gRPC service description with one method per operation
func (s *OperationService) ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: OperationServiceName,
		HandlerType: (*OperationServer)(nil),
		Metadata:    "eddy/v1/operations",
	}
	for _, name := range s.Methods() {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    structHandler(OperationServiceName, name, func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.(OperationServer).Invoke(ctx, name, req)
			}),
		})
	}
	return desc
}

// Register registers the service on a gRPC server
func (s *OperationService) Register(server grpc.ServiceRegistrar) {
	server.RegisterService(s.ServiceDesc(), s)
}

// Invoke runs the named operation with the request's fields as arguments
func (s *OperationService) Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	op, ok := s.operations[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown operation %q", method)
	}
	if err := op.admit(ctx, method); err != nil {
		return nil, toStatus(err)
	}
	args := req.AsMap()

	switch op.kind {
	case opGet:
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		rec, err := op.set.ReadOne(ctx, id)
		if err != nil {
			return nil, toStatus(err)
		}
		return render(op.set, rec)

	case opGetAll:
		if len(args) > 0 {
			return nil, status.Errorf(codes.InvalidArgument, "%s takes no arguments", method)
		}
		recs, err := op.set.ReadAll(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		items := make([]interface{}, 0, len(recs))
		for _, rec := range recs {
			items = append(items, coercion.Render(op.set.Schema, rec))
		}
		return newStruct(map[string]interface{}{"items": items})

	case opCreate:
		rec, err := op.set.Create(ctx, args)
		if err != nil {
			s.logCommitted(method, rec, err)
			return nil, toStatus(err)
		}
		return render(op.set, rec)

	case opUpdate:
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		delete(args, entities.IDField)
		rec, err := op.set.Update(ctx, id, args)
		if err != nil {
			s.logCommitted(method, rec, err)
			return nil, toStatus(err)
		}
		return render(op.set, rec)

	case opDelete:
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		deleted, err := op.set.Delete(ctx, id)
		if err != nil {
			return nil, toStatus(err)
		}
		return newStruct(map[string]interface{}{entities.IDField: deleted})
	}
	return nil, status.Errorf(codes.Internal, "operation %q has no handler", method)
}

// logCommitted reports writes that were stored even though the call failed afterwards
func (s *OperationService) logCommitted(method string, rec *entities.Record, err error) {
	if rec == nil {
		return
	}
	s.logger.Warn("write committed but post-commit step failed",
		zap.String("operation", method),
		zap.Stringer("record", rec),
		zap.Error(err),
	)
}

func requireID(args map[string]interface{}) (int64, error) {
	raw, ok := args[entities.IDField]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", entities.IDField)
	}
	id, err := coercion.ParseID(raw)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s %v", entities.IDField, err)
	}
	return id, nil
}

func render(set *synthesizer.OperationSet, rec *entities.Record) (*structpb.Struct, error) {
	return newStruct(coercion.Render(set.Schema, rec))
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// structHandler adapts a Struct-to-Struct call to a grpc.MethodHandler
func structHandler(service, method string, call func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
