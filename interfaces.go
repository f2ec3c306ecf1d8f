package dataset

import (
	"context"

	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

// Service issues the Datastore RPCs. It holds the project id and fills it into
// every request. A nil transaction means the call runs outside a transaction.
// *service.Service is the gRPC implementation.
type Service interface {
	ProjectID() string
	Lookup(ctx context.Context, keys []*pb.Key, transaction []byte) (*pb.LookupResponse, error)
	RunQuery(ctx context.Context, partition *pb.PartitionId, query *pb.Query, transaction []byte) (*pb.RunQueryResponse, error)
	Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (*pb.CommitResponse, error)
	BeginTransaction(ctx context.Context) (*pb.BeginTransactionResponse, error)
	Rollback(ctx context.Context, transaction []byte) error
	AllocateIDs(ctx context.Context, keys []*pb.Key) (*pb.AllocateIdsResponse, error)
}

// Middleware wraps every RPC a Dataset issues.
type Middleware interface {
	WrapService(next Service) Service
}
