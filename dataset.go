package dataset

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.mercari.io/dataset/internal"
	"go.mercari.io/dataset/service"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

var _ Service = (*service.Service)(nil)

// Dataset is the entry point of the client. It converts keys, entities and
// queries to the wire format and issues exactly one RPC per operation.
//
// A Dataset may be used from several goroutines as long as the middleware
// list is not changed concurrently.
type Dataset struct {
	service     Service
	middlewares []Middleware
}

// New resolves the project id, dials Cloud Datastore (or the emulator) and
// returns a Dataset over the connection.
func New(ctx context.Context, opts ...ClientOption) (*Dataset, error) {
	settings := &internal.ClientSettings{}
	for _, opt := range opts {
		opt.Apply(settings)
	}
	settings.ProjectID = internal.ResolveProjectID(settings.ProjectID)
	if settings.ProjectID == "" {
		return nil, ErrMissingProjectID
	}

	svc, err := service.Dial(ctx, settings)
	if err != nil {
		return nil, err
	}
	return &Dataset{service: svc}, nil
}

// NewWithService returns a Dataset issuing its RPCs through svc.
func NewWithService(svc Service) (*Dataset, error) {
	if svc == nil {
		return nil, ErrNoService
	}
	if svc.ProjectID() == "" {
		return nil, ErrMissingProjectID
	}
	return &Dataset{service: svc}, nil
}

// ProjectID returns the project the dataset belongs to.
func (d *Dataset) ProjectID() string {
	if d.service == nil {
		return ""
	}
	return d.service.ProjectID()
}

// Close releases the service connection, if the service owns one.
func (d *Dataset) Close() error {
	if c, ok := d.service.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AppendMiddleware adds mw to the RPC chain. The first appended middleware
// sees every call first.
func (d *Dataset) AppendMiddleware(mw Middleware) {
	d.middlewares = append(d.middlewares, mw)
}

// RemoveMiddleware removes mw and reports whether it was present.
func (d *Dataset) RemoveMiddleware(mw Middleware) bool {
	for idx, m := range d.middlewares {
		if m == mw {
			d.middlewares = append(d.middlewares[:idx:idx], d.middlewares[idx+1:]...)
			return true
		}
	}
	return false
}

// rpc returns the service wrapped by the middlewares.
func (d *Dataset) rpc() (Service, error) {
	if d == nil || d.service == nil {
		return nil, ErrNoService
	}
	svc := d.service
	for idx := len(d.middlewares) - 1; 0 <= idx; idx-- {
		svc = d.middlewares[idx].WrapService(svc)
	}
	return svc, nil
}

// Query returns a new query over kinds. No RPC is issued.
func (d *Dataset) Query(kinds ...string) *Query {
	return NewQuery(kinds...)
}

// Key returns a new key. See NewKey. No RPC is issued.
func (d *Dataset) Key(kind string, idOrName interface{}) *Key {
	return NewKey(kind, idOrName)
}

// Entity returns a new entity with a key built by NewKey, after passing it
// to every init func. No RPC is issued.
func (d *Dataset) Entity(kind string, idOrName interface{}, init ...func(e *Entity)) *Entity {
	e := NewEntity(NewKey(kind, idOrName))
	for _, f := range init {
		f(e)
	}
	return e
}

// AllocateIDs reserves count ids for key, which must be incomplete, and
// returns count complete keys.
func (d *Dataset) AllocateIDs(ctx context.Context, key *Key, count int) ([]*Key, error) {
	svc, err := d.rpc()
	if err != nil {
		return nil, err
	}
	if key.Complete() {
		return nil, ErrKeyComplete
	}
	if count <= 0 {
		return nil, nil
	}

	pKey := toProtoKey(key)
	pKeys := make([]*pb.Key, count)
	for idx := range pKeys {
		pKeys[idx] = pKey
	}

	resp, err := svc.AllocateIDs(ctx, pKeys)
	if err != nil {
		return nil, err
	}
	return fromProtoKeys(resp.Keys), nil
}

// Save upserts entities with one commit. Entities with incomplete keys get
// the keys assigned by the service, matched by position. It returns entities.
func (d *Dataset) Save(ctx context.Context, entities ...*Entity) ([]*Entity, error) {
	svc, err := d.rpc()
	if err != nil {
		return nil, err
	}

	mutations, pending, err := upsertMutations(entities, 0)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Commit(ctx, mutations, nil)
	if err != nil {
		return nil, err
	}
	assignKeys(pending, resp)
	return entities, nil
}

// Find returns the entity stored under key, or nil if there is none.
func (d *Dataset) Find(ctx context.Context, key *Key) (*Entity, error) {
	res, err := d.FindAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(res.Entities) == 0 {
		return nil, nil
	}
	return res.Entities[0], nil
}

// FindAll looks up keys with one RPC.
func (d *Dataset) FindAll(ctx context.Context, keys ...*Key) (*LookupResults, error) {
	return d.lookup(ctx, keys, nil)
}

func (d *Dataset) lookup(ctx context.Context, keys []*Key, transaction []byte) (*LookupResults, error) {
	svc, err := d.rpc()
	if err != nil {
		return nil, err
	}

	resp, err := svc.Lookup(ctx, toProtoKeys(keys), transaction)
	if err != nil {
		return nil, err
	}
	res := newLookupResults(resp)
	res.lookup = func(ctx context.Context, keys []*Key) (*LookupResults, error) {
		return d.lookup(ctx, keys, transaction)
	}
	return res, nil
}

// Delete deletes every key or entity with one commit.
func (d *Dataset) Delete(ctx context.Context, items ...KeyHolder) error {
	svc, err := d.rpc()
	if err != nil {
		return err
	}

	_, err = svc.Commit(ctx, deleteMutations(items), nil)
	return err
}

// RunOption modifies a single Run.
type RunOption func(*runSettings)

type runSettings struct {
	namespace string
}

// InNamespace runs the query in namespace.
func InNamespace(namespace string) RunOption {
	return func(s *runSettings) {
		s.namespace = namespace
	}
}

// Run runs q with one RPC and returns the first batch of results.
func (d *Dataset) Run(ctx context.Context, q *Query, opts ...RunOption) (*QueryResults, error) {
	return d.run(ctx, q, opts, nil)
}

// Iterate returns an Iterator over every result of q, fetching batches
// as needed.
func (d *Dataset) Iterate(ctx context.Context, q *Query, opts ...RunOption) *Iterator {
	return &Iterator{
		ctx: ctx,
		first: func(ctx context.Context) (*QueryResults, error) {
			return d.run(ctx, q, opts, nil)
		},
	}
}

func (d *Dataset) run(ctx context.Context, q *Query, opts []RunOption, transaction []byte) (*QueryResults, error) {
	svc, err := d.rpc()
	if err != nil {
		return nil, err
	}

	settings := &runSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	pq, err := q.toProto()
	if err != nil {
		return nil, err
	}
	partition := &pb.PartitionId{
		ProjectId:   svc.ProjectID(),
		NamespaceId: settings.namespace,
	}

	resp, err := svc.RunQuery(ctx, partition, pq, transaction)
	if err != nil {
		return nil, err
	}
	res := newQueryResults(resp)
	res.query = q
	res.run = func(ctx context.Context, q *Query) (*QueryResults, error) {
		return d.run(ctx, q, opts, transaction)
	}
	return res, nil
}

// Transaction begins a transaction. The caller must Commit or Rollback it.
func (d *Dataset) Transaction(ctx context.Context) (*Transaction, error) {
	svc, err := d.rpc()
	if err != nil {
		return nil, err
	}

	resp, err := svc.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{ds: d, id: resp.Transaction}, nil
}

// RunInTransaction runs f in a new transaction and commits it when f returns
// nil. When f or the commit fails, the transaction is rolled back and a
// *TransactionError carrying the failure is returned. A panic in f rolls back
// the transaction and is re-raised.
func (d *Dataset) RunInTransaction(ctx context.Context, f func(tx *Transaction) error) (err error) {
	tx, err := d.Transaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := f(tx); err != nil {
		if !tx.Finished() {
			_ = tx.Rollback(ctx)
		}
		return newTransactionError("transaction failed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if !tx.Finished() {
			_ = tx.Rollback(ctx)
		}
		return newTransactionError("transaction failed to commit", err)
	}
	return nil
}

// pendingKey is an entity saved with an incomplete key, and the position of
// its mutation in the commit.
type pendingKey struct {
	entity *Entity
	index  int
}

// upsertMutations builds one upsert per entity, numbering the mutations from
// offset, and collects the entities waiting for a generated key in order.
func upsertMutations(entities []*Entity, offset int) ([]*pb.Mutation, []pendingKey, error) {
	mutations := make([]*pb.Mutation, 0, len(entities))
	var pending []pendingKey
	for idx, e := range entities {
		if e == nil {
			return nil, nil, invalidArgumentf("entity %d is nil", idx)
		}
		pe, err := toProtoEntity(e)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "entity %d", idx)
		}
		if e.key.Incomplete() {
			pending = append(pending, pendingKey{entity: e, index: offset + idx})
		}
		mutations = append(mutations, &pb.Mutation{
			Operation: &pb.Mutation_Upsert{Upsert: pe},
		})
	}
	return mutations, pending, nil
}

func deleteMutations(items []KeyHolder) []*pb.Mutation {
	mutations := make([]*pb.Mutation, 0, len(items))
	for _, item := range items {
		var key *Key
		if item != nil {
			key = item.DatastoreKey()
		}
		mutations = append(mutations, &pb.Mutation{
			Operation: &pb.Mutation_Delete{Delete: toProtoKey(key)},
		})
	}
	return mutations
}

// assignKeys sets the keys the service allocated onto the pending entities.
// The commit returns one result per mutation, in submission order.
func assignKeys(pending []pendingKey, resp *pb.CommitResponse) {
	results := resp.GetMutationResults()
	for _, p := range pending {
		if p.index >= len(results) {
			continue
		}
		if key := results[p.index].GetKey(); key != nil {
			p.entity.key = fromProtoKey(key).freeze()
		}
	}
}
