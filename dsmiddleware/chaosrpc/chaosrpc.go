// Package chaosrpc provides a middleware that fails a fraction of the RPCs
// before they reach the service. It is meant for exercising error handling
// in tests.
package chaosrpc

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"go.mercari.io/dataset"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

// ErrChaos is returned in place of the RPC result.
var ErrChaos = errors.New("chaosrpc: injected failure")

var _ dataset.Middleware = &chaosHandler{}
var _ dataset.Service = &chaosService{}

// New returns a middleware that fails about one RPC in five, drawing from s.
func New(s rand.Source) dataset.Middleware {
	return &chaosHandler{
		r: rand.New(s),
	}
}

type chaosHandler struct {
	m sync.Mutex
	r *rand.Rand
}

func (ch *chaosHandler) WrapService(next dataset.Service) dataset.Service {
	return &chaosService{ch: ch, next: next}
}

func (ch *chaosHandler) raiseError() error {
	ch.m.Lock()
	defer ch.m.Unlock()

	// Make an error with a 20% rate
	if ch.r.Intn(5) == 0 {
		return ErrChaos
	}

	return nil
}

type chaosService struct {
	ch   *chaosHandler
	next dataset.Service
}

func (s *chaosService) ProjectID() string {
	return s.next.ProjectID()
}

func (s *chaosService) Lookup(ctx context.Context, keys []*pb.Key, transaction []byte) (*pb.LookupResponse, error) {
	if err := s.ch.raiseError(); err != nil {
		return nil, err
	}

	return s.next.Lookup(ctx, keys, transaction)
}

func (s *chaosService) RunQuery(ctx context.Context, partition *pb.PartitionId, query *pb.Query, transaction []byte) (*pb.RunQueryResponse, error) {
	if err := s.ch.raiseError(); err != nil {
		return nil, err
	}

	return s.next.RunQuery(ctx, partition, query, transaction)
}

func (s *chaosService) Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (*pb.CommitResponse, error) {
	if err := s.ch.raiseError(); err != nil {
		return nil, err
	}

	return s.next.Commit(ctx, mutations, transaction)
}

func (s *chaosService) BeginTransaction(ctx context.Context) (*pb.BeginTransactionResponse, error) {
	if err := s.ch.raiseError(); err != nil {
		return nil, err
	}

	return s.next.BeginTransaction(ctx)
}

// Rollback always reaches the service so a failed transaction is released.
func (s *chaosService) Rollback(ctx context.Context, transaction []byte) error {
	return s.next.Rollback(ctx, transaction)
}

func (s *chaosService) AllocateIDs(ctx context.Context, keys []*pb.Key) (*pb.AllocateIdsResponse, error) {
	if err := s.ch.raiseError(); err != nil {
		return nil, err
	}

	return s.next.AllocateIDs(ctx, keys)
}
