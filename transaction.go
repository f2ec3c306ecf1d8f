package dataset

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

// Transaction scopes reads and writes to one remote transaction.
//
// Reads are issued immediately with the transaction id, including the
// follow-up reads of LookupResults.Next and QueryResults.Next. Save and Delete
// are buffered and sent by Commit. After Commit or Rollback every method returns
// ErrTransactionFinished.
type Transaction struct {
	ds *Dataset
	id []byte

	m        sync.Mutex
	ops      []txOp
	finished bool
}

// txOp is a buffered write. Entities and keys are read at Commit.
type txOp struct {
	entity *Entity
	key    KeyHolder
	delete bool
}

// ID returns the transaction id assigned by the service.
func (tx *Transaction) ID() []byte {
	return tx.id
}

// Finished reports whether the transaction was committed or rolled back.
func (tx *Transaction) Finished() bool {
	tx.m.Lock()
	defer tx.m.Unlock()
	return tx.finished
}

func (tx *Transaction) active() error {
	tx.m.Lock()
	defer tx.m.Unlock()
	if tx.finished {
		return ErrTransactionFinished
	}
	return nil
}

// Find returns the entity stored under key within the transaction, or nil.
func (tx *Transaction) Find(ctx context.Context, key *Key) (*Entity, error) {
	res, err := tx.FindAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(res.Entities) == 0 {
		return nil, nil
	}
	return res.Entities[0], nil
}

// FindAll looks up keys within the transaction. LookupResults.Next stays
// bound to the transaction.
func (tx *Transaction) FindAll(ctx context.Context, keys ...*Key) (*LookupResults, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	res, err := tx.ds.lookup(ctx, keys, tx.id)
	if err != nil {
		return nil, err
	}
	res.lookup = func(ctx context.Context, keys []*Key) (*LookupResults, error) {
		return tx.FindAll(ctx, keys...)
	}
	return res, nil
}

// Run runs q within the transaction. QueryResults.Next stays bound to the
// transaction.
func (tx *Transaction) Run(ctx context.Context, q *Query, opts ...RunOption) (*QueryResults, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	res, err := tx.ds.run(ctx, q, opts, tx.id)
	if err != nil {
		return nil, err
	}
	res.run = func(ctx context.Context, q *Query) (*QueryResults, error) {
		return tx.Run(ctx, q, opts...)
	}
	return res, nil
}

// AllocateIDs reserves ids like Dataset.AllocateIDs. Allocation is not part
// of the transaction and takes effect immediately.
func (tx *Transaction) AllocateIDs(ctx context.Context, key *Key, count int) ([]*Key, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.ds.AllocateIDs(ctx, key, count)
}

// Query returns a new query over kinds. No RPC is issued.
func (tx *Transaction) Query(kinds ...string) *Query {
	return tx.ds.Query(kinds...)
}

// Key returns a new key. See NewKey. No RPC is issued.
func (tx *Transaction) Key(kind string, idOrName interface{}) *Key {
	return tx.ds.Key(kind, idOrName)
}

// Entity returns a new entity. See Dataset.Entity. No RPC is issued.
func (tx *Transaction) Entity(kind string, idOrName interface{}, init ...func(e *Entity)) *Entity {
	return tx.ds.Entity(kind, idOrName, init...)
}

// Iterate returns an Iterator over every result of q within the transaction.
func (tx *Transaction) Iterate(ctx context.Context, q *Query, opts ...RunOption) *Iterator {
	return &Iterator{
		ctx: ctx,
		first: func(ctx context.Context) (*QueryResults, error) {
			return tx.Run(ctx, q, opts...)
		},
	}
}

// Save buffers an upsert per entity. The entities are encoded by Commit, so
// changes made before Commit are saved. Incomplete keys are completed by Commit.
func (tx *Transaction) Save(entities ...*Entity) error {
	tx.m.Lock()
	defer tx.m.Unlock()
	if tx.finished {
		return ErrTransactionFinished
	}

	for idx, e := range entities {
		if e == nil {
			return invalidArgumentf("entity %d is nil", idx)
		}
	}
	for _, e := range entities {
		tx.ops = append(tx.ops, txOp{entity: e})
	}
	return nil
}

// Delete buffers a delete per key or entity.
func (tx *Transaction) Delete(items ...KeyHolder) error {
	tx.m.Lock()
	defer tx.m.Unlock()
	if tx.finished {
		return ErrTransactionFinished
	}

	for _, item := range items {
		tx.ops = append(tx.ops, txOp{key: item, delete: true})
	}
	return nil
}

// mutations encodes the buffered writes in the order they were made.
func (tx *Transaction) mutations() ([]*pb.Mutation, []pendingKey, error) {
	mutations := make([]*pb.Mutation, 0, len(tx.ops))
	var pending []pendingKey
	for _, op := range tx.ops {
		if op.delete {
			mutations = append(mutations, deleteMutations([]KeyHolder{op.key})...)
			continue
		}
		ms, ps, err := upsertMutations([]*Entity{op.entity}, len(mutations))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "mutation %d", len(mutations))
		}
		mutations = append(mutations, ms...)
		pending = append(pending, ps...)
	}
	return mutations, pending, nil
}

// Commit sends the buffered mutations. Entities saved with incomplete keys
// receive their generated keys.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.m.Lock()
	defer tx.m.Unlock()
	if tx.finished {
		return ErrTransactionFinished
	}
	svc, err := tx.ds.rpc()
	if err != nil {
		return err
	}

	mutations, pending, err := tx.mutations()
	if err != nil {
		return err
	}
	resp, err := svc.Commit(ctx, mutations, tx.id)
	if err != nil {
		return err
	}
	tx.finished = true
	assignKeys(pending, resp)
	tx.ops = nil
	return nil
}

// Rollback abandons the transaction and its buffered mutations.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.m.Lock()
	defer tx.m.Unlock()
	if tx.finished {
		return ErrTransactionFinished
	}
	svc, err := tx.ds.rpc()
	if err != nil {
		return err
	}

	tx.finished = true
	tx.ops = nil
	return svc.Rollback(ctx, tx.id)
}
