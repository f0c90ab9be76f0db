package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// FeedbackLoopServiceName is the fully qualified gRPC service name. Messages are plain
// Go structs encoded as JSON, not protobuf: clients other than FeedbackLoopClient must
// send content-type application/grpc+json, e.g. grpc.CallContentSubtype(JSONCodecName).
const FeedbackLoopServiceName = "mirador.feedback.v1.FeedbackLoop"

// IngestErrorResponse reports the stored event and the cluster it joined.
type IngestErrorResponse struct {
	Event          models.ErrorEvent `json:"event"`
	ClusterID      string            `json:"clusterId"`
	ClusterCreated bool              `json:"clusterCreated"`
	Executions     []string          `json:"executions,omitempty"`
}

// ClusterRequest addresses a single cluster.
type ClusterRequest struct {
	ClusterID string `json:"clusterId" validate:"required"`
}

// ListClustersRequest filters a tenant's clusters.
type ListClustersRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
	Status   string `json:"status,omitempty"`
	Severity string `json:"severity,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ListClustersResponse wraps a cluster listing.
type ListClustersResponse struct {
	Clusters []models.ErrorCluster `json:"clusters"`
}

// GenerateTestRequest asks for a regression test.
type GenerateTestRequest struct {
	TenantID       string `json:"tenantId" validate:"required"`
	ErrorClusterID string `json:"errorClusterId" validate:"required"`
	Framework      string `json:"framework,omitempty"`
}

// ListExecutionsResponse wraps a cluster's executions.
type ListExecutionsResponse struct {
	Executions []models.FeedbackLoopExecution `json:"executions"`
}

// FeedbackLoopServer is the gRPC surface of the feedback loop.
type FeedbackLoopServer interface {
	IngestError(ctx context.Context, req *IngestErrorRequest) (*IngestErrorResponse, error)
	GetCluster(ctx context.Context, req *ClusterRequest) (*models.ErrorCluster, error)
	ListClusters(ctx context.Context, req *ListClustersRequest) (*ListClustersResponse, error)
	AnalyzeImpact(ctx context.Context, req *ClusterRequest) (*models.ImpactAnalysis, error)
	GenerateRegressionTest(ctx context.Context, req *GenerateTestRequest) (*models.RegressionTest, error)
	ListExecutions(ctx context.Context, req *ClusterRequest) (*ListExecutionsResponse, error)
}

func fullMethod(method string) string {
	return "/" + FeedbackLoopServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(FeedbackLoopServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FeedbackLoopServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FeedbackLoopServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FeedbackLoopServiceDesc describes the service for grpc.Server registration.
var FeedbackLoopServiceDesc = grpc.ServiceDesc{
	ServiceName: FeedbackLoopServiceName,
	HandlerType: (*FeedbackLoopServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IngestError", Handler: unaryHandler("IngestError", FeedbackLoopServer.IngestError)},
		{MethodName: "GetCluster", Handler: unaryHandler("GetCluster", FeedbackLoopServer.GetCluster)},
		{MethodName: "ListClusters", Handler: unaryHandler("ListClusters", FeedbackLoopServer.ListClusters)},
		{MethodName: "AnalyzeImpact", Handler: unaryHandler("AnalyzeImpact", FeedbackLoopServer.AnalyzeImpact)},
		{MethodName: "GenerateRegressionTest", Handler: unaryHandler("GenerateRegressionTest", FeedbackLoopServer.GenerateRegressionTest)},
		{MethodName: "ListExecutions", Handler: unaryHandler("ListExecutions", FeedbackLoopServer.ListExecutions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/feedback/v1/feedback",
}

// RegisterFeedbackLoopServer registers the service implementation.
func RegisterFeedbackLoopServer(s grpc.ServiceRegistrar, srv FeedbackLoopServer) {
	s.RegisterService(&FeedbackLoopServiceDesc, srv)
}

// GRPCService adapts the feedback service to FeedbackLoopServer.
type GRPCService struct {
	svc FeedbackService
}

// NewGRPCService wraps svc for gRPC.
func NewGRPCService(svc FeedbackService) *GRPCService {
	return &GRPCService{svc: svc}
}

var _ FeedbackLoopServer = (*GRPCService)(nil)

// IngestError ingests a canonical error report.
func (s *GRPCService) IngestError(ctx context.Context, req *IngestErrorRequest) (*IngestErrorResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	result, err := s.svc.IngestError(ctx, req.toModel())
	if err != nil {
		return nil, grpcError(err)
	}
	return &IngestErrorResponse{
		Event:          result.Event,
		ClusterID:      result.Cluster.ID,
		ClusterCreated: result.Created,
		Executions:     result.Executions,
	}, nil
}

// GetCluster fetches one cluster.
func (s *GRPCService) GetCluster(ctx context.Context, req *ClusterRequest) (*models.ErrorCluster, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	cluster, err := s.svc.GetCluster(ctx, req.ClusterID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &cluster, nil
}

// ListClusters lists a tenant's clusters.
func (s *GRPCService) ListClusters(ctx context.Context, req *ListClustersRequest) (*ListClustersResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	clusters, err := s.svc.ListClusters(ctx, models.ClusterFilter{
		TenantID: req.TenantID,
		Status:   models.ClusterStatus(req.Status),
		Severity: models.Severity(req.Severity),
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListClustersResponse{Clusters: clusters}, nil
}

// AnalyzeImpact scores a cluster.
func (s *GRPCService) AnalyzeImpact(ctx context.Context, req *ClusterRequest) (*models.ImpactAnalysis, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	analysis, err := s.svc.AnalyzeImpact(ctx, req.ClusterID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &analysis, nil
}

// GenerateRegressionTest generates a regression test for a cluster.
func (s *GRPCService) GenerateRegressionTest(ctx context.Context, req *GenerateTestRequest) (*models.RegressionTest, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	test, err := s.svc.GenerateRegressionTest(ctx, models.RegressionTestRequest{
		TenantID:       req.TenantID,
		ErrorClusterID: req.ErrorClusterID,
		Framework:      models.TestFramework(req.Framework),
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &test, nil
}

// ListExecutions returns a cluster's executions.
func (s *GRPCService) ListExecutions(ctx context.Context, req *ClusterRequest) (*ListExecutionsResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, grpcError(err)
	}
	execs, err := s.svc.ListExecutions(ctx, req.ClusterID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListExecutionsResponse{Executions: execs}, nil
}

// FeedbackLoopClient calls the FeedbackLoop service using the JSON codec.
type FeedbackLoopClient struct {
	cc grpc.ClientConnInterface
}

// NewFeedbackLoopClient wraps a client connection.
func NewFeedbackLoopClient(cc grpc.ClientConnInterface) *FeedbackLoopClient {
	return &FeedbackLoopClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// IngestError ingests a canonical error report.
func (c *FeedbackLoopClient) IngestError(ctx context.Context, in *IngestErrorRequest, opts ...grpc.CallOption) (*IngestErrorResponse, error) {
	return invoke[IngestErrorRequest, IngestErrorResponse](ctx, c.cc, "IngestError", in, opts)
}

// GetCluster fetches one cluster.
func (c *FeedbackLoopClient) GetCluster(ctx context.Context, in *ClusterRequest, opts ...grpc.CallOption) (*models.ErrorCluster, error) {
	return invoke[ClusterRequest, models.ErrorCluster](ctx, c.cc, "GetCluster", in, opts)
}

// ListClusters lists a tenant's clusters.
func (c *FeedbackLoopClient) ListClusters(ctx context.Context, in *ListClustersRequest, opts ...grpc.CallOption) (*ListClustersResponse, error) {
	return invoke[ListClustersRequest, ListClustersResponse](ctx, c.cc, "ListClusters", in, opts)
}

// AnalyzeImpact scores a cluster.
func (c *FeedbackLoopClient) AnalyzeImpact(ctx context.Context, in *ClusterRequest, opts ...grpc.CallOption) (*models.ImpactAnalysis, error) {
	return invoke[ClusterRequest, models.ImpactAnalysis](ctx, c.cc, "AnalyzeImpact", in, opts)
}

// GenerateRegressionTest generates a regression test for a cluster.
func (c *FeedbackLoopClient) GenerateRegressionTest(ctx context.Context, in *GenerateTestRequest, opts ...grpc.CallOption) (*models.RegressionTest, error) {
	return invoke[GenerateTestRequest, models.RegressionTest](ctx, c.cc, "GenerateRegressionTest", in, opts)
}

// ListExecutions returns a cluster's executions.
func (c *FeedbackLoopClient) ListExecutions(ctx context.Context, in *ClusterRequest, opts ...grpc.CallOption) (*ListExecutionsResponse, error) {
	return invoke[ClusterRequest, ListExecutionsResponse](ctx, c.cc, "ListExecutions", in, opts)
}
