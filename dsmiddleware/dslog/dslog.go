// Package dslog provides a middleware that logs every Datastore RPC.
package dslog

import (
	"context"
	"strings"
	"sync"

	"go.mercari.io/dataset"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

var _ dataset.Middleware = &logger{}
var _ dataset.Service = &loggingService{}

// NewLogger returns a middleware writing to logf before and after each RPC.
// Lines of the same call share a number taken from a per-logger counter.
func NewLogger(prefix string, logf func(ctx context.Context, format string, args ...interface{})) dataset.Middleware {
	return &logger{Prefix: prefix, Logf: logf, counter: 1}
}

type logger struct {
	Prefix string
	Logf   func(ctx context.Context, format string, args ...interface{})

	m       sync.Mutex
	counter int
}

func (l *logger) WrapService(next dataset.Service) dataset.Service {
	return &loggingService{l: l, next: next}
}

func (l *logger) count() int {
	l.m.Lock()
	defer l.m.Unlock()
	cnt := l.counter
	l.counter++
	return cnt
}

func (l *logger) KeysToString(keys []*pb.Key) string {
	keyStrings := make([]string, 0, len(keys))
	for _, key := range keys {
		keyStrings = append(keyStrings, dataset.KeyFromProto(key).String())
	}

	return strings.Join(keyStrings, ", ")
}

type loggingService struct {
	l    *logger
	next dataset.Service
}

func (s *loggingService) ProjectID() string {
	return s.next.ProjectID()
}

func (s *loggingService) Lookup(ctx context.Context, keys []*pb.Key, transaction []byte) (*pb.LookupResponse, error) {
	l := s.l
	cnt := l.count()

	l.Logf(ctx, l.Prefix+"Lookup #%d, len(keys)=%d, keys=[%s], tx=%t", cnt, len(keys), l.KeysToString(keys), transaction != nil)

	resp, err := s.next.Lookup(ctx, keys, transaction)

	if err == nil {
		l.Logf(ctx, l.Prefix+"Lookup #%d, found=%d, missing=%d, deferred=%d", cnt, len(resp.Found), len(resp.Missing), len(resp.Deferred))
	} else {
		l.Logf(ctx, l.Prefix+"Lookup #%d, err=%s", cnt, err.Error())
	}

	return resp, err
}

func (s *loggingService) RunQuery(ctx context.Context, partition *pb.PartitionId, query *pb.Query, transaction []byte) (*pb.RunQueryResponse, error) {
	l := s.l
	cnt := l.count()

	kinds := make([]string, 0, len(query.GetKind()))
	for _, k := range query.GetKind() {
		kinds = append(kinds, k.Name)
	}
	l.Logf(ctx, l.Prefix+"RunQuery #%d, kinds=[%s], namespace=%q, tx=%t", cnt, strings.Join(kinds, ", "), partition.GetNamespaceId(), transaction != nil)

	resp, err := s.next.RunQuery(ctx, partition, query, transaction)

	if err == nil {
		batch := resp.GetBatch()
		l.Logf(ctx, l.Prefix+"RunQuery #%d, len(entities)=%d, more=%s", cnt, len(batch.GetEntityResults()), batch.GetMoreResults().String())
	} else {
		l.Logf(ctx, l.Prefix+"RunQuery #%d, err=%s", cnt, err.Error())
	}

	return resp, err
}

func (s *loggingService) Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (*pb.CommitResponse, error) {
	l := s.l
	cnt := l.count()

	var upserts, deletes int
	for _, m := range mutations {
		switch m.GetOperation().(type) {
		case *pb.Mutation_Upsert:
			upserts++
		case *pb.Mutation_Delete:
			deletes++
		}
	}
	l.Logf(ctx, l.Prefix+"Commit #%d, upserts=%d, deletes=%d, tx=%t", cnt, upserts, deletes, transaction != nil)

	resp, err := s.next.Commit(ctx, mutations, transaction)

	if err == nil {
		var keys []*pb.Key
		for _, mr := range resp.GetMutationResults() {
			if mr.GetKey() != nil {
				keys = append(keys, mr.GetKey())
			}
		}
		l.Logf(ctx, l.Prefix+"Commit #%d, keys=[%s]", cnt, l.KeysToString(keys))
	} else {
		l.Logf(ctx, l.Prefix+"Commit #%d, err=%s", cnt, err.Error())
	}

	return resp, err
}

func (s *loggingService) BeginTransaction(ctx context.Context) (*pb.BeginTransactionResponse, error) {
	l := s.l
	cnt := l.count()

	l.Logf(ctx, l.Prefix+"BeginTransaction #%d", cnt)

	resp, err := s.next.BeginTransaction(ctx)

	if err != nil {
		l.Logf(ctx, l.Prefix+"BeginTransaction #%d, err=%s", cnt, err.Error())
	}

	return resp, err
}

func (s *loggingService) Rollback(ctx context.Context, transaction []byte) error {
	l := s.l
	cnt := l.count()

	l.Logf(ctx, l.Prefix+"Rollback #%d", cnt)

	err := s.next.Rollback(ctx, transaction)

	if err != nil {
		l.Logf(ctx, l.Prefix+"Rollback #%d, err=%s", cnt, err.Error())
	}

	return err
}

func (s *loggingService) AllocateIDs(ctx context.Context, keys []*pb.Key) (*pb.AllocateIdsResponse, error) {
	l := s.l
	cnt := l.count()

	l.Logf(ctx, l.Prefix+"AllocateIDs #%d, len(keys)=%d, keys=[%s]", cnt, len(keys), l.KeysToString(keys))

	resp, err := s.next.AllocateIDs(ctx, keys)

	if err == nil {
		l.Logf(ctx, l.Prefix+"AllocateIDs #%d, keys=[%s]", cnt, l.KeysToString(resp.Keys))
	} else {
		l.Logf(ctx, l.Prefix+"AllocateIDs #%d, err=%s", cnt, err.Error())
	}

	return resp, err
}
