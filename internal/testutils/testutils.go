// Package testutils provides an in-memory Datastore service for tests.
package testutils

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/protobuf/proto"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

// Call records one RPC received by a FakeService.
type Call struct {
	Method      string
	Keys        []*pb.Key
	Mutations   []*pb.Mutation
	Partition   *pb.PartitionId
	Query       *pb.Query
	Transaction []byte
}

// FakeService keeps entities in memory and answers the Datastore RPCs the
// way the service does, closely enough for unit tests. It satisfies
// dataset.Service.
type FakeService struct {
	Project string
	// BatchSize splits query results into batches of this size when positive.
	BatchSize int
	// Errors makes the named method fail with the error.
	Errors map[string]error

	m        sync.Mutex
	nextID   int64
	nextTx   int
	entities map[string]*pb.Entity
	deferred map[string]bool
	calls    []Call
}

// NewFakeService returns an empty FakeService for projectID.
func NewFakeService(projectID string) *FakeService {
	return &FakeService{
		Project:  projectID,
		Errors:   make(map[string]error),
		nextID:   1000,
		entities: make(map[string]*pb.Entity),
		deferred: make(map[string]bool),
	}
}

// KeyString formats the path of key, "Kind:id/Kind:name".
func KeyString(key *pb.Key) string {
	parts := make([]string, 0, len(key.GetPath()))
	for _, pe := range key.GetPath() {
		switch {
		case pe.GetName() != "":
			parts = append(parts, pe.Kind+":"+pe.GetName())
		default:
			parts = append(parts, pe.Kind+":"+strconv.FormatInt(pe.GetId(), 10))
		}
	}
	return key.GetPartitionId().GetNamespaceId() + "|" + strings.Join(parts, "/")
}

// Put stores e without recording a call.
func (s *FakeService) Put(e *pb.Entity) {
	s.m.Lock()
	defer s.m.Unlock()
	s.entities[KeyString(e.Key)] = proto.Clone(e).(*pb.Entity)
}

// Stored returns a copy of the entity stored under key, or nil.
func (s *FakeService) Stored(key *pb.Key) *pb.Entity {
	s.m.Lock()
	defer s.m.Unlock()
	e, ok := s.entities[KeyString(key)]
	if !ok {
		return nil
	}
	return proto.Clone(e).(*pb.Entity)
}

// Defer makes the next Lookup of key report it as deferred.
func (s *FakeService) Defer(key *pb.Key) {
	s.m.Lock()
	defer s.m.Unlock()
	s.deferred[KeyString(key)] = true
}

// Calls returns the RPCs received so far.
func (s *FakeService) Calls() []Call {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]Call(nil), s.calls...)
}

// Methods returns the method names of the RPCs received so far.
func (s *FakeService) Methods() []string {
	s.m.Lock()
	defer s.m.Unlock()
	methods := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		methods = append(methods, c.Method)
	}
	return methods
}

func (s *FakeService) record(c Call) error {
	s.calls = append(s.calls, c)
	return s.Errors[c.Method]
}

func (s *FakeService) ProjectID() string {
	return s.Project
}

func (s *FakeService) Lookup(ctx context.Context, keys []*pb.Key, transaction []byte) (*pb.LookupResponse, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.record(Call{Method: "Lookup", Keys: keys, Transaction: transaction}); err != nil {
		return nil, err
	}

	resp := &pb.LookupResponse{}
	for _, key := range keys {
		ks := KeyString(key)
		if s.deferred[ks] {
			delete(s.deferred, ks)
			resp.Deferred = append(resp.Deferred, key)
			continue
		}
		if e, ok := s.entities[ks]; ok {
			resp.Found = append(resp.Found, &pb.EntityResult{Entity: proto.Clone(e).(*pb.Entity)})
			continue
		}
		resp.Missing = append(resp.Missing, &pb.EntityResult{Entity: &pb.Entity{Key: key}})
	}
	return resp, nil
}

func (s *FakeService) Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (*pb.CommitResponse, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.record(Call{Method: "Commit", Mutations: mutations, Transaction: transaction}); err != nil {
		return nil, err
	}

	resp := &pb.CommitResponse{}
	for _, m := range mutations {
		mr := &pb.MutationResult{}
		switch op := m.Operation.(type) {
		case *pb.Mutation_Upsert:
			e := proto.Clone(op.Upsert).(*pb.Entity)
			if s.complete(e.Key) == nil {
				mr.Key = proto.Clone(e.Key).(*pb.Key)
			}
			s.entities[KeyString(e.Key)] = e
		case *pb.Mutation_Delete:
			delete(s.entities, KeyString(op.Delete))
		default:
			return nil, fmt.Errorf("testutils: unsupported mutation %T", op)
		}
		resp.MutationResults = append(resp.MutationResults, mr)
	}
	return resp, nil
}

// complete assigns an id to an incomplete key in place. It returns a non-nil
// error when the key was already complete.
func (s *FakeService) complete(key *pb.Key) error {
	if len(key.Path) == 0 {
		return fmt.Errorf("testutils: empty key")
	}
	last := key.Path[len(key.Path)-1]
	if last.IdType != nil {
		return fmt.Errorf("testutils: complete key")
	}
	last.IdType = &pb.Key_PathElement_Id{Id: s.nextID}
	s.nextID++
	return nil
}

func (s *FakeService) BeginTransaction(ctx context.Context) (*pb.BeginTransactionResponse, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.record(Call{Method: "BeginTransaction"}); err != nil {
		return nil, err
	}

	s.nextTx++
	return &pb.BeginTransactionResponse{Transaction: []byte(fmt.Sprintf("tx-%d", s.nextTx))}, nil
}

func (s *FakeService) Rollback(ctx context.Context, transaction []byte) error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.record(Call{Method: "Rollback", Transaction: transaction})
}

func (s *FakeService) AllocateIDs(ctx context.Context, keys []*pb.Key) (*pb.AllocateIdsResponse, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.record(Call{Method: "AllocateIDs", Keys: keys}); err != nil {
		return nil, err
	}

	resp := &pb.AllocateIdsResponse{}
	for _, key := range keys {
		k := proto.Clone(key).(*pb.Key)
		if err := s.complete(k); err != nil {
			return nil, err
		}
		resp.Keys = append(resp.Keys, k)
	}
	return resp, nil
}

// RunQuery supports kind, equality and ancestor filters, offset, limit and
// cursors. Results are ordered by key.
func (s *FakeService) RunQuery(ctx context.Context, partition *pb.PartitionId, query *pb.Query, transaction []byte) (*pb.RunQueryResponse, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.record(Call{Method: "RunQuery", Partition: partition, Query: query, Transaction: transaction}); err != nil {
		return nil, err
	}

	var matched []*pb.Entity
	for _, e := range s.entities {
		if s.match(e, partition, query) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return KeyString(matched[i].Key) < KeyString(matched[j].Key)
	})

	start := 0
	if c := string(query.StartCursor); c != "" {
		start, _ = strconv.Atoi(c)
	}
	skipped := int(query.Offset)
	if rest := len(matched) - start; rest < skipped {
		skipped = rest
	}
	if skipped < 0 {
		skipped = 0
	}
	start += skipped

	end := len(matched)
	limited := false
	if query.Limit != nil && start+int(query.Limit.Value) < end {
		end = start + int(query.Limit.Value)
		limited = true
	}
	more := pb.QueryResultBatch_NO_MORE_RESULTS
	if limited {
		more = pb.QueryResultBatch_MORE_RESULTS_AFTER_LIMIT
	}
	if s.BatchSize > 0 && start+s.BatchSize < end {
		end = start + s.BatchSize
		more = pb.QueryResultBatch_NOT_FINISHED
	}

	keysOnly := len(query.Projection) == 1 && query.Projection[0].GetProperty().GetName() == "__key__"
	batch := &pb.QueryResultBatch{
		SkippedResults: int32(skipped),
		EndCursor:      []byte(strconv.Itoa(end)),
		MoreResults:    more,
	}
	for idx := start; idx < end; idx++ {
		e := proto.Clone(matched[idx]).(*pb.Entity)
		if keysOnly {
			e.Properties = nil
		}
		batch.EntityResults = append(batch.EntityResults, &pb.EntityResult{
			Entity: e,
			Cursor: []byte(strconv.Itoa(idx + 1)),
		})
	}
	return &pb.RunQueryResponse{Batch: batch, Query: query}, nil
}

func (s *FakeService) match(e *pb.Entity, partition *pb.PartitionId, query *pb.Query) bool {
	if e.Key.GetPartitionId().GetNamespaceId() != partition.GetNamespaceId() {
		return false
	}
	path := e.Key.Path
	if len(query.Kind) != 0 && path[len(path)-1].Kind != query.Kind[0].Name {
		return false
	}

	var filters []*pb.Filter
	if cf := query.GetFilter().GetCompositeFilter(); cf != nil {
		filters = cf.Filters
	} else if query.GetFilter() != nil {
		filters = []*pb.Filter{query.GetFilter()}
	}
	for _, f := range filters {
		pf := f.GetPropertyFilter()
		if pf == nil {
			return false
		}
		switch pf.Op {
		case pb.PropertyFilter_EQUAL:
			v, ok := e.Properties[pf.Property.GetName()]
			if !ok || !proto.Equal(stripIndex(v), stripIndex(pf.Value)) {
				return false
			}
		case pb.PropertyFilter_HAS_ANCESTOR:
			if !hasAncestor(e.Key, pf.Value.GetKeyValue()) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func stripIndex(v *pb.Value) *pb.Value {
	v = proto.Clone(v).(*pb.Value)
	v.ExcludeFromIndexes = false
	return v
}

func hasAncestor(key, ancestor *pb.Key) bool {
	if len(ancestor.GetPath()) > len(key.Path) {
		return false
	}
	for idx, pe := range ancestor.GetPath() {
		if !proto.Equal(pe, key.Path[idx]) {
			return false
		}
	}
	return true
}
