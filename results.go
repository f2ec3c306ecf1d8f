package dataset

import (
	"context"
	"fmt"

	"google.golang.org/api/iterator"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

// MoreResults tells whether a query batch is the last one.
type MoreResults int

const (
	MoreResultsUnspecified MoreResults = iota
	// NotFinished means more results may exist after the batch cursor.
	NotFinished
	// MoreResultsAfterLimit means the query limit was reached.
	MoreResultsAfterLimit
	// MoreResultsAfterCursor means the query end cursor was reached.
	MoreResultsAfterCursor
	// NoMoreResults means the query is exhausted.
	NoMoreResults
)

func (m MoreResults) String() string {
	switch m {
	case NotFinished:
		return "NOT_FINISHED"
	case MoreResultsAfterLimit:
		return "MORE_RESULTS_AFTER_LIMIT"
	case MoreResultsAfterCursor:
		return "MORE_RESULTS_AFTER_CURSOR"
	case NoMoreResults:
		return "NO_MORE_RESULTS"
	case MoreResultsUnspecified:
		return "MORE_RESULTS_TYPE_UNSPECIFIED"
	}
	return fmt.Sprintf("MoreResults(%d)", int(m))
}

func fromProtoMoreResults(t pb.QueryResultBatch_MoreResultsType) MoreResults {
	switch t {
	case pb.QueryResultBatch_NOT_FINISHED:
		return NotFinished
	case pb.QueryResultBatch_MORE_RESULTS_AFTER_LIMIT:
		return MoreResultsAfterLimit
	case pb.QueryResultBatch_MORE_RESULTS_AFTER_CURSOR:
		return MoreResultsAfterCursor
	case pb.QueryResultBatch_NO_MORE_RESULTS:
		return NoMoreResults
	}
	return MoreResultsUnspecified
}

// LookupResults is the outcome of one Lookup RPC.
type LookupResults struct {
	// Entities are the entities found.
	Entities []*Entity
	// Deferred are keys the service did not resolve in this round trip.
	Deferred []*Key
	// Missing holds one key-only entity per key that does not exist.
	Missing []*Entity

	lookup func(ctx context.Context, keys []*Key) (*LookupResults, error)
}

func newLookupResults(resp *pb.LookupResponse) *LookupResults {
	res := &LookupResults{
		Entities: make([]*Entity, 0, len(resp.Found)),
		Deferred: fromProtoKeys(resp.Deferred),
		Missing:  make([]*Entity, 0, len(resp.Missing)),
	}
	for _, er := range resp.Found {
		res.Entities = append(res.Entities, fromProtoEntity(er.Entity))
	}
	for _, er := range resp.Missing {
		res.Missing = append(res.Missing, fromProtoEntity(er.Entity))
	}
	return res
}

// HasNext reports whether some keys were deferred.
func (r *LookupResults) HasNext() bool {
	return len(r.Deferred) != 0
}

// Next looks up the deferred keys with one more RPC. It returns
// iterator.Done when nothing was deferred.
func (r *LookupResults) Next(ctx context.Context) (*LookupResults, error) {
	if !r.HasNext() || r.lookup == nil {
		return nil, iterator.Done
	}
	return r.lookup(ctx, r.Deferred)
}

// QueryResults is one batch of query results.
type QueryResults struct {
	Entities []*Entity
	// Cursors[i] is the position right after Entities[i].
	Cursors []Cursor
	// Cursor is the position after the whole batch.
	Cursor         Cursor
	MoreResults    MoreResults
	SkippedResults int

	query *Query
	run   func(ctx context.Context, q *Query) (*QueryResults, error)
}

func newQueryResults(resp *pb.RunQueryResponse) *QueryResults {
	batch := resp.GetBatch()
	res := &QueryResults{
		Entities:       make([]*Entity, 0, len(batch.GetEntityResults())),
		Cursors:        make([]Cursor, 0, len(batch.GetEntityResults())),
		Cursor:         Cursor(batch.GetEndCursor()),
		MoreResults:    fromProtoMoreResults(batch.GetMoreResults()),
		SkippedResults: int(batch.GetSkippedResults()),
	}
	for _, er := range batch.GetEntityResults() {
		res.Entities = append(res.Entities, fromProtoEntity(er.Entity))
		res.Cursors = append(res.Cursors, Cursor(er.Cursor))
	}
	return res
}

// HasNext reports whether the service may have more results after Cursor.
func (r *QueryResults) HasNext() bool {
	return r.MoreResults == NotFinished
}

// Next runs the query again from Cursor. The limit is reduced by the number
// of entities already returned. It returns iterator.Done when HasNext is false.
func (r *QueryResults) Next(ctx context.Context) (*QueryResults, error) {
	if !r.HasNext() || len(r.Cursor) == 0 || r.run == nil {
		return nil, iterator.Done
	}

	q := r.query.clone()
	q.Start(r.Cursor)
	q.offset -= int32(r.SkippedResults)
	if q.offset < 0 {
		q.offset = 0
	}
	if q.hasLimit {
		q.limit -= int32(len(r.Entities))
	}
	return r.run(ctx, q)
}
