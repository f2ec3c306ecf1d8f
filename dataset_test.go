package dataset

import (
	"context"
	"strings"
	"testing"

	"go.mercari.io/dataset/internal/testutils"
	"google.golang.org/api/iterator"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

func newTestDataset(t *testing.T) (context.Context, *Dataset, *testutils.FakeService) {
	t.Helper()

	svc := testutils.NewFakeService("test-project")
	ds, err := NewWithService(svc)
	if err != nil {
		t.Fatal(err)
	}
	return context.Background(), ds, svc
}

func putTasks(svc *testutils.FakeService, namespace string, ids ...int64) {
	for _, id := range ids {
		key := IDKey("Task", id, nil)
		key.namespace = namespace
		e := NewEntity(key)
		e.Set("done", BoolValue(id%2 == 0))
		pe, _ := toProtoEntity(e)
		svc.Put(pe)
	}
}

func TestNewWithService(t *testing.T) {
	if _, err := NewWithService(nil); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if _, err := NewWithService(testutils.NewFakeService("")); err != ErrMissingProjectID {
		t.Errorf("unexpected: %v", err)
	}

	_, ds, _ := newTestDataset(t)
	if v := ds.ProjectID(); v != "test-project" {
		t.Errorf("unexpected: %v", v)
	}
	if err := ds.Close(); err != nil {
		t.Error(err)
	}
}

func TestDataset_NoService(t *testing.T) {
	ctx := context.Background()
	ds := &Dataset{}

	if _, err := ds.Save(ctx, NewEntity(IncompleteKey("Task", nil))); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if _, err := ds.Find(ctx, IDKey("Task", 1, nil)); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if err := ds.Delete(ctx, IDKey("Task", 1, nil)); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if _, err := ds.Run(ctx, NewQuery("Task")); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if _, err := ds.AllocateIDs(ctx, IncompleteKey("Task", nil), 1); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if _, err := ds.Transaction(ctx); err != ErrNoService {
		t.Errorf("unexpected: %v", err)
	}
	if v := ds.ProjectID(); v != "" {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_LocalBuilders(t *testing.T) {
	_, ds, svc := newTestDataset(t)

	e := ds.Entity("Task", "sampleTask", func(e *Entity) {
		e.Set("priority", IntValue(4))
	})
	if v := e.Key().Name(); v != "sampleTask" {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := e.Get("priority"); v.Int() != 4 {
		t.Errorf("unexpected: %v", v)
	}
	if v := ds.Key("Task", 5).ID(); v != 5 {
		t.Errorf("unexpected: %v", v)
	}
	if v := ds.Query("Task").kinds; len(v) != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if v := len(svc.Calls()); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_AllocateIDs(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)

	keys, err := ds.AllocateIDs(ctx, IncompleteKey("Task", nil), 5)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(keys); v != 5 {
		t.Fatalf("unexpected: %v", v)
	}
	for idx, key := range keys {
		if !key.Complete() {
			t.Errorf("#%d unexpected: incomplete", idx)
		}
		if !key.Frozen() {
			t.Errorf("#%d unexpected: not frozen", idx)
		}
		if v := key.Kind(); v != "Task" {
			t.Errorf("#%d unexpected: %v", idx, v)
		}
	}

	calls := svc.Calls()
	if v := len(calls); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := len(calls[0].Keys); v != 5 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_AllocateIDsWithCompleteKey(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)

	_, err := ds.AllocateIDs(ctx, IDKey("Task", 1, nil), 5)
	if err != ErrKeyComplete {
		t.Fatalf("unexpected: %v", err)
	}
	if v := len(svc.Calls()); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_Save(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)

	e1 := NewEntity(IncompleteKey("Task", nil))
	e1.Set("description", StringValue("first"))
	e2 := NewEntity(NameKey("Task", "second", nil))
	e2.Set("description", StringValue("second"))
	e3 := NewEntity(IncompleteKey("Task", nil))

	saved, err := ds.Save(ctx, e1, e2, e3)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(saved); v != 3 {
		t.Fatalf("unexpected: %v", v)
	}

	if v := e1.Key().ID(); v != 1000 {
		t.Errorf("unexpected: %v", v)
	}
	if !e1.Persisted() {
		t.Error("unexpected: not persisted")
	}
	if v := e2.Key().Name(); v != "second" {
		t.Errorf("unexpected: %v", v)
	}
	if e2.Persisted() {
		t.Error("unexpected: persisted")
	}
	if v := e3.Key().ID(); v != 1001 {
		t.Errorf("unexpected: %v", v)
	}

	calls := svc.Calls()
	if v := len(calls); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := calls[0].Method; v != "Commit" {
		t.Errorf("unexpected: %v", v)
	}
	if v := len(calls[0].Mutations); v != 3 {
		t.Errorf("unexpected: %v", v)
	}
	if v := calls[0].Transaction; v != nil {
		t.Errorf("unexpected: %v", v)
	}

	if svc.Stored(toProtoKey(e2.Key())) == nil {
		t.Error("unexpected: not stored")
	}
}

func TestDataset_SaveNil(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)

	if _, err := ds.Save(ctx, nil); err == nil {
		t.Fatal("unexpected: nil error")
	}
	if v := len(svc.Calls()); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_FindAll(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	putTasks(svc, "", 1, 2)
	svc.Defer(toProtoKey(IDKey("Task", 2, nil)))

	res, err := ds.FindAll(ctx, IDKey("Task", 1, nil), IDKey("Task", 2, nil), IDKey("Task", 3, nil))
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := res.Entities[0].Key().ID(); v != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if v := len(res.Missing); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := res.Missing[0].Key().ID(); v != 3 {
		t.Errorf("unexpected: %v", v)
	}
	if v := res.Missing[0].Len(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
	if !res.HasNext() {
		t.Fatal("unexpected: no deferred keys")
	}

	next, err := res.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(next.Entities); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := next.Entities[0].Key().ID(); v != 2 {
		t.Errorf("unexpected: %v", v)
	}
	if next.HasNext() {
		t.Error("unexpected: deferred keys")
	}
	if _, err := next.Next(ctx); err != iterator.Done {
		t.Errorf("unexpected: %v", err)
	}

	if v := strings.Join(svc.Methods(), ","); v != "Lookup,Lookup" {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_Find(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	putTasks(svc, "", 2)

	e, err := ds.Find(ctx, IDKey("Task", 2, nil))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get("done"); !v.Bool() {
		t.Errorf("unexpected: %v", v)
	}

	e, err = ds.Find(ctx, IDKey("Task", 3, nil))
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Errorf("unexpected: %v", e)
	}
}

func TestDataset_Delete(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	putTasks(svc, "", 1, 2, 3)

	e := NewEntity(IDKey("Task", 1, nil))
	if err := ds.Delete(ctx, e, IDKey("Task", 2, nil)); err != nil {
		t.Fatal(err)
	}

	calls := svc.Calls()
	if v := len(calls); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := len(calls[0].Mutations); v != 2 {
		t.Fatalf("unexpected: %v", v)
	}
	for idx, m := range calls[0].Mutations {
		if _, ok := m.Operation.(*pb.Mutation_Delete); !ok {
			t.Errorf("#%d unexpected: %T", idx, m.Operation)
		}
	}

	for _, id := range []int64{1, 2} {
		if svc.Stored(toProtoKey(IDKey("Task", id, nil))) != nil {
			t.Errorf("unexpected: %d is stored", id)
		}
	}
	if svc.Stored(toProtoKey(IDKey("Task", 3, nil))) == nil {
		t.Error("unexpected: 3 is not stored")
	}
}

func TestDataset_Run(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	putTasks(svc, "", 1, 2, 3, 4)
	putTasks(svc, "ns", 10, 12)

	res, err := ds.Run(ctx, NewQuery("Task").Where("done", "=", true))
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 2 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := len(res.Cursors); v != 2 {
		t.Errorf("unexpected: %v", v)
	}
	if v := res.MoreResults; v != NoMoreResults {
		t.Errorf("unexpected: %v", v)
	}
	if res.HasNext() {
		t.Error("unexpected: has next")
	}
	if _, err := res.Next(ctx); err != iterator.Done {
		t.Errorf("unexpected: %v", err)
	}

	res, err = ds.Run(ctx, NewQuery("Task"), InNamespace("ns"))
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 2 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := res.Entities[0].Key().Namespace(); v != "ns" {
		t.Errorf("unexpected: %v", v)
	}

	calls := svc.Calls()
	if v := calls[1].Partition; v.ProjectId != "test-project" || v.NamespaceId != "ns" {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_RunInvalidQuery(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)

	if _, err := ds.Run(ctx, NewQuery("Task").Where("done", "<>", true)); err == nil {
		t.Fatal("unexpected: nil error")
	}
	if v := len(svc.Calls()); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_RunKeysOnly(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	putTasks(svc, "", 1, 2)

	res, err := ds.Run(ctx, NewQuery("Task").KeysOnly())
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 2 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := res.Entities[0].Len(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestQueryResults_Next(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	svc.BatchSize = 2
	putTasks(svc, "", 1, 2, 3, 4, 5)

	res, err := ds.Run(ctx, NewQuery("Task").Limit(3))
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 2 {
		t.Fatalf("unexpected: %v", v)
	}
	if !res.HasNext() {
		t.Fatal("unexpected: no next")
	}

	next, err := res.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(next.Entities); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := next.Entities[0].Key().ID(); v != 3 {
		t.Errorf("unexpected: %v", v)
	}
	if v := next.MoreResults; v != MoreResultsAfterLimit {
		t.Errorf("unexpected: %v", v)
	}

	calls := svc.Calls()
	if v := calls[1].Query.Limit.GetValue(); v != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if v := string(calls[1].Query.StartCursor); v != "2" {
		t.Errorf("unexpected: %v", v)
	}
}

func TestQueryResults_NextWithOffset(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	svc.BatchSize = 2
	putTasks(svc, "", 1, 2, 3, 4, 5)

	res, err := ds.Run(ctx, NewQuery("Task").Offset(1))
	if err != nil {
		t.Fatal(err)
	}
	if v := res.SkippedResults; v != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if v := res.Entities[0].Key().ID(); v != 2 {
		t.Errorf("unexpected: %v", v)
	}

	if _, err := res.Next(ctx); err != nil {
		t.Fatal(err)
	}
	calls := svc.Calls()
	if v := calls[1].Query.Offset; v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestDataset_Iterate(t *testing.T) {
	ctx, ds, svc := newTestDataset(t)
	svc.BatchSize = 2
	putTasks(svc, "", 1, 2, 3, 4, 5)

	it := ds.Iterate(ctx, NewQuery("Task"))
	var ids []int64
	for {
		e, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.Key().ID())
	}

	if v := len(ids); v != 5 {
		t.Fatalf("unexpected: %v", v)
	}
	for idx, id := range ids {
		if id != int64(idx+1) {
			t.Errorf("#%d unexpected: %v", idx, id)
		}
	}
	if v := len(svc.Calls()); v != 3 {
		t.Errorf("unexpected: %v", v)
	}

	c, err := it.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	if v := string(c); v != "5" {
		t.Errorf("unexpected: %v", v)
	}
	if _, err := it.Next(); err != iterator.Done {
		t.Errorf("unexpected: %v", err)
	}
}

type recordingMiddleware struct {
	name string
	log  *[]string
}

func (mw *recordingMiddleware) WrapService(next Service) Service {
	return &recordingService{Service: next, mw: mw}
}

type recordingService struct {
	Service
	mw *recordingMiddleware
}

func (s *recordingService) Commit(ctx context.Context, mutations []*pb.Mutation, transaction []byte) (*pb.CommitResponse, error) {
	*s.mw.log = append(*s.mw.log, s.mw.name)
	return s.Service.Commit(ctx, mutations, transaction)
}

func TestDataset_Middleware(t *testing.T) {
	ctx, ds, _ := newTestDataset(t)

	var log []string
	first := &recordingMiddleware{name: "first", log: &log}
	second := &recordingMiddleware{name: "second", log: &log}
	ds.AppendMiddleware(first)
	ds.AppendMiddleware(second)

	if err := ds.Delete(ctx, IDKey("Task", 1, nil)); err != nil {
		t.Fatal(err)
	}
	if v := strings.Join(log, ","); v != "first,second" {
		t.Errorf("unexpected: %v", v)
	}

	if !ds.RemoveMiddleware(first) {
		t.Fatal("unexpected: not removed")
	}
	if ds.RemoveMiddleware(first) {
		t.Error("unexpected: removed twice")
	}

	log = nil
	if err := ds.Delete(ctx, IDKey("Task", 1, nil)); err != nil {
		t.Fatal(err)
	}
	if v := strings.Join(log, ","); v != "second" {
		t.Errorf("unexpected: %v", v)
	}
}
