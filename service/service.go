// Package service holds the gRPC connection to Cloud Datastore and exposes
// one pass-through method per RPC. It does not retry, cache or batch.
package service

import (
	"context"

	"github.com/pkg/errors"
	"go.mercari.io/dataset/dstrace"
	"go.mercari.io/dataset/internal"
	"google.golang.org/api/option"
	gtransport "google.golang.org/api/transport/grpc"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	// DefaultEndpoint is the production Datastore endpoint.
	DefaultEndpoint = "datastore.googleapis.com:443"
	// ScopeDatastore is the OAuth2 scope for Datastore.
	ScopeDatastore = "https://www.googleapis.com/auth/datastore"

	resourcePrefixHeader = "google-cloud-resource-prefix"
)

// RPCClient is the subset of pb.DatastoreClient the Service calls.
type RPCClient interface {
	Lookup(ctx context.Context, in *pb.LookupRequest, opts ...grpc.CallOption) (*pb.LookupResponse, error)
	RunQuery(ctx context.Context, in *pb.RunQueryRequest, opts ...grpc.CallOption) (*pb.RunQueryResponse, error)
	BeginTransaction(ctx context.Context, in *pb.BeginTransactionRequest, opts ...grpc.CallOption) (*pb.BeginTransactionResponse, error)
	Commit(ctx context.Context, in *pb.CommitRequest, opts ...grpc.CallOption) (*pb.CommitResponse, error)
	Rollback(ctx context.Context, in *pb.RollbackRequest, opts ...grpc.CallOption) (*pb.RollbackResponse, error)
	AllocateIds(ctx context.Context, in *pb.AllocateIdsRequest, opts ...grpc.CallOption) (*pb.AllocateIdsResponse, error)
}

var _ RPCClient = pb.DatastoreClient(nil)

// Service issues Datastore RPCs for one project.
type Service struct {
	projectID string
	client    RPCClient
	conn      *grpc.ClientConn
}

// New returns a Service over an existing client. The caller owns the
// client's connection.
func New(projectID string, client RPCClient) *Service {
	return &Service{projectID: projectID, client: client}
}

// Dial opens a connection described by settings. settings.ProjectID must be
// resolved already. An emulator host, when set, is dialed without TLS and
// credentials.
func Dial(ctx context.Context, settings *internal.ClientSettings) (*Service, error) {
	if settings.ProjectID == "" {
		return nil, errors.New("service: project id is required")
	}
	logf := settings.LogfOrNop()

	var conn *grpc.ClientConn
	var err error
	if host := internal.ResolveEmulatorHost(settings.EmulatorHost); host != "" {
		logf(ctx, "service: dialing emulator at %s for project %s", host, settings.ProjectID)
		conn, err = grpc.DialContext(ctx, host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		logf(ctx, "service: dialing %s for project %s", endpointOf(settings), settings.ProjectID)
		conn, err = gtransport.Dial(ctx, dialOptions(settings)...)
	}
	if err != nil {
		return nil, errors.Wrap(err, "service: dial failed")
	}

	return &Service{
		projectID: settings.ProjectID,
		client:    pb.NewDatastoreClient(conn),
		conn:      conn,
	}, nil
}

func endpointOf(settings *internal.ClientSettings) string {
	if settings.Endpoint != "" {
		return settings.Endpoint
	}
	return DefaultEndpoint
}

func dialOptions(settings *internal.ClientSettings) []option.ClientOption {
	opts := []option.ClientOption{
		option.WithEndpoint(endpointOf(settings)),
	}
	if len(settings.Scopes) != 0 {
		opts = append(opts, option.WithScopes(settings.Scopes...))
	} else {
		opts = append(opts, option.WithScopes(ScopeDatastore))
	}
	if settings.TokenSource != nil {
		opts = append(opts, option.WithTokenSource(settings.TokenSource))
	}
	if len(settings.CredentialsJSON) != 0 {
		opts = append(opts, option.WithCredentialsJSON(settings.CredentialsJSON))
	}
	if settings.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(settings.CredentialsFile))
	}
	return opts
}

func (s *Service) ProjectID() string {
	return s.projectID
}

// Close closes the connection opened by Dial.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Service) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, resourcePrefixHeader, "projects/"+s.projectID)
}

func readOptions(transaction []byte) *pb.ReadOptions {
	if transaction == nil {
		return nil
	}
	return &pb.ReadOptions{
		ConsistencyType: &pb.ReadOptions_Transaction{Transaction: transaction},
	}
}

func (s *Service) Lookup(ctx context.Context, keys []*pb.Key, transaction []byte) (resp *pb.LookupResponse, err error) {
	ctx, span := dstrace.StartSpan(ctx, "Lookup")
	defer func() { dstrace.EndSpan(ctx, span, "Lookup", err) }()

	return s.client.Lookup(s.outgoing(ctx), &pb.LookupRequest{
		ProjectId:   s.projectID,
		ReadOptions: readOptions(transaction),
		Keys:        keys,
	})
}

func (s *Service) RunQuery(ctx context.Context, partition *pb.PartitionId, query *pb.Query, transaction []byte) (resp *pb.RunQueryResponse, err error) {
	ctx, span := dstrace.StartSpan(ctx, "RunQuery")
	defer func() { dstrace.EndSpan(ctx, span, "RunQuery", err) }()

	return s.client.RunQuery(s.outgoing(ctx), &pb.RunQueryRequest{
		ProjectId:   s.projectID,
		PartitionId: partition,
		ReadOptions: readOptions(transaction),
		QueryType:   &pb.RunQueryRequest_Query{Query: query},
	})
}

// Commit applies mutations. Without a transaction the commit is
// non-transactional.
func (s *Service) Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (resp *pb.CommitResponse, err error) {
	ctx, span := dstrace.StartSpan(ctx, "Commit")
	defer func() { dstrace.EndSpan(ctx, span, "Commit", err) }()

	req := &pb.CommitRequest{
		ProjectId: s.projectID,
		Mode:      pb.CommitRequest_NON_TRANSACTIONAL,
		Mutations: mutations,
	}
	if transaction != nil {
		req.Mode = pb.CommitRequest_TRANSACTIONAL
		req.TransactionSelector = &pb.CommitRequest_Transaction{Transaction: transaction}
	}
	return s.client.Commit(s.outgoing(ctx), req)
}

func (s *Service) BeginTransaction(ctx context.Context) (resp *pb.BeginTransactionResponse, err error) {
	ctx, span := dstrace.StartSpan(ctx, "BeginTransaction")
	defer func() { dstrace.EndSpan(ctx, span, "BeginTransaction", err) }()

	return s.client.BeginTransaction(s.outgoing(ctx), &pb.BeginTransactionRequest{
		ProjectId: s.projectID,
	})
}

func (s *Service) Rollback(ctx context.Context, transaction []byte) (err error) {
	ctx, span := dstrace.StartSpan(ctx, "Rollback")
	defer func() { dstrace.EndSpan(ctx, span, "Rollback", err) }()

	_, err = s.client.Rollback(s.outgoing(ctx), &pb.RollbackRequest{
		ProjectId:   s.projectID,
		Transaction: transaction,
	})
	return err
}

func (s *Service) AllocateIDs(ctx context.Context, keys []*pb.Key) (resp *pb.AllocateIdsResponse, err error) {
	ctx, span := dstrace.StartSpan(ctx, "AllocateIds")
	defer func() { dstrace.EndSpan(ctx, span, "AllocateIds", err) }()

	return s.client.AllocateIds(s.outgoing(ctx), &pb.AllocateIdsRequest{
		ProjectId: s.projectID,
		Keys:      keys,
	})
}
