package dataset

import (
	"context"

	"google.golang.org/api/iterator"
)

// Iterator walks the results of a query across batches.
type Iterator struct {
	ctx   context.Context
	first func(ctx context.Context) (*QueryResults, error)

	res    *QueryResults
	idx    int
	cursor Cursor
	err    error
}

// Next returns the next entity, or iterator.Done after the last one.
func (it *Iterator) Next() (*Entity, error) {
	for it.err == nil {
		switch {
		case it.res == nil:
			it.res, it.err = it.first(it.ctx)
			it.idx = 0
		case it.idx < len(it.res.Entities):
			e := it.res.Entities[it.idx]
			if it.idx < len(it.res.Cursors) {
				it.cursor = it.res.Cursors[it.idx]
			}
			it.idx++
			if it.idx == len(it.res.Entities) && len(it.res.Cursor) != 0 {
				it.cursor = it.res.Cursor
			}
			return e, nil
		case it.res.HasNext():
			it.res, it.err = it.res.Next(it.ctx)
			it.idx = 0
		default:
			if len(it.res.Cursor) != 0 {
				it.cursor = it.res.Cursor
			}
			it.err = iterator.Done
		}
	}
	return nil, it.err
}

// Cursor returns the position after the last entity returned by Next.
func (it *Iterator) Cursor() (Cursor, error) {
	if it.err != nil && it.err != iterator.Done {
		return nil, it.err
	}
	return it.cursor, nil
}
