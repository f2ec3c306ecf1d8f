package dataset

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var operatorsToProto = map[string]pb.PropertyFilter_Operator{
	"=":            pb.PropertyFilter_EQUAL,
	"==":           pb.PropertyFilter_EQUAL,
	"eq":           pb.PropertyFilter_EQUAL,
	"eql":          pb.PropertyFilter_EQUAL,
	"is":           pb.PropertyFilter_EQUAL,
	"<":            pb.PropertyFilter_LESS_THAN,
	"lt":           pb.PropertyFilter_LESS_THAN,
	"<=":           pb.PropertyFilter_LESS_THAN_OR_EQUAL,
	"=<":           pb.PropertyFilter_LESS_THAN_OR_EQUAL,
	"lte":          pb.PropertyFilter_LESS_THAN_OR_EQUAL,
	">":            pb.PropertyFilter_GREATER_THAN,
	"gt":           pb.PropertyFilter_GREATER_THAN,
	">=":           pb.PropertyFilter_GREATER_THAN_OR_EQUAL,
	"=>":           pb.PropertyFilter_GREATER_THAN_OR_EQUAL,
	"gte":          pb.PropertyFilter_GREATER_THAN_OR_EQUAL,
	"~":            pb.PropertyFilter_HAS_ANCESTOR,
	"~>":           pb.PropertyFilter_HAS_ANCESTOR,
	"ancestor":     pb.PropertyFilter_HAS_ANCESTOR,
	"has_ancestor": pb.PropertyFilter_HAS_ANCESTOR,
	"has ancestor": pb.PropertyFilter_HAS_ANCESTOR,
}

type queryFilter struct {
	Property string
	Op       pb.PropertyFilter_Operator
	Value    Value
}

type queryOrder struct {
	Property   string
	Descending bool
}

// Query describes a Datastore query. Every builder method mutates the query
// and returns it, so calls can be chained:
//
//	q := NewQuery("Task").Where("done", "=", false).Order("priority", "desc").Limit(10)
//
// The first invalid argument is kept and reported by Err and by Dataset.Run.
// A Query must not be shared between goroutines while it is being built.
type Query struct {
	kinds      []string
	filters    []queryFilter
	ancestor   *Key
	order      []queryOrder
	projection []string
	distinctOn []string
	limit      int32
	hasLimit   bool
	offset     int32
	start      Cursor
	end        Cursor

	firstError error
}

// NewQuery returns a query over kinds.
func NewQuery(kinds ...string) *Query {
	q := &Query{}
	return q.Kind(kinds...)
}

func (q *Query) addError(err error) {
	if q.firstError == nil {
		q.firstError = err
	}
}

// Err returns the first error recorded while building q.
func (q *Query) Err() error {
	return q.firstError
}

// Kind adds kinds to the query.
func (q *Query) Kind(kinds ...string) *Query {
	q.kinds = append(q.kinds, kinds...)
	return q
}

// Where adds a property filter. op is one of "=", "<", "<=", ">", ">=" and
// "~" (has ancestor), or a word alias such as "eq", "lte" or "has_ancestor".
func (q *Query) Where(name, op string, value interface{}) *Query {
	pOp, ok := operatorsToProto[strings.ToLower(strings.TrimSpace(op))]
	if !ok {
		q.addError(invalidArgumentf("unknown filter operator %q", op))
		return q
	}
	v, err := ValueOf(value)
	if err != nil {
		q.addError(errors.Wrapf(err, "filter on %q", name))
		return q
	}
	q.filters = append(q.filters, queryFilter{Property: name, Op: pOp, Value: v})
	return q
}

// Ancestor restricts the query to descendants of the holder's key.
func (q *Query) Ancestor(parent KeyHolder) *Query {
	if parent == nil {
		q.ancestor = nil
		return q
	}
	q.ancestor = parent.DatastoreKey()
	return q
}

// Order sorts by name, ascending unless name starts with "-" or direction
// starts with "d" ("desc", "descending").
func (q *Query) Order(name string, direction ...string) *Query {
	desc := false
	if strings.HasPrefix(name, "-") {
		desc = true
		name = strings.TrimPrefix(name, "-")
	}
	if len(direction) != 0 && strings.HasPrefix(strings.ToLower(direction[0]), "d") {
		desc = true
	}
	q.order = append(q.order, queryOrder{Property: name, Descending: desc})
	return q
}

// Select sets the projection.
func (q *Query) Select(names ...string) *Query {
	q.projection = append(q.projection, names...)
	return q
}

// KeysOnly projects the query on __key__.
func (q *Query) KeysOnly() *Query {
	return q.Select("__key__")
}

// DistinctOn groups results by the given properties.
func (q *Query) DistinctOn(names ...string) *Query {
	q.distinctOn = append(q.distinctOn, names...)
	return q
}

// Limit caps the number of results. It must fit in an int32.
func (q *Query) Limit(limit int) *Query {
	if limit < math.MinInt32 || math.MaxInt32 < limit {
		q.addError(invalidArgumentf("limit %d out of range", limit))
		return q
	}
	q.limit = int32(limit)
	q.hasLimit = true
	return q
}

// Offset skips results. It must fit in an int32.
func (q *Query) Offset(offset int) *Query {
	if offset < math.MinInt32 || math.MaxInt32 < offset {
		q.addError(invalidArgumentf("offset %d out of range", offset))
		return q
	}
	q.offset = int32(offset)
	return q
}

// Start sets the cursor the results start at.
func (q *Query) Start(c Cursor) *Query {
	q.start = c
	return q
}

// End sets the cursor the results end at.
func (q *Query) End(c Cursor) *Query {
	q.end = c
	return q
}

func (q *Query) clone() *Query {
	x := *q
	x.kinds = append([]string(nil), q.kinds...)
	x.filters = append([]queryFilter(nil), q.filters...)
	x.order = append([]queryOrder(nil), q.order...)
	x.projection = append([]string(nil), q.projection...)
	x.distinctOn = append([]string(nil), q.distinctOn...)
	return &x
}

func (q *Query) toProto() (*pb.Query, error) {
	if q.firstError != nil {
		return nil, q.firstError
	}

	pq := &pb.Query{
		StartCursor: q.start,
		EndCursor:   q.end,
		Offset:      q.offset,
	}
	if q.hasLimit {
		pq.Limit = &wrapperspb.Int32Value{Value: q.limit}
	}
	for _, kind := range q.kinds {
		pq.Kind = append(pq.Kind, &pb.KindExpression{Name: kind})
	}
	for _, name := range q.projection {
		pq.Projection = append(pq.Projection, &pb.Projection{Property: &pb.PropertyReference{Name: name}})
	}
	for _, name := range q.distinctOn {
		pq.DistinctOn = append(pq.DistinctOn, &pb.PropertyReference{Name: name})
	}
	for _, o := range q.order {
		dir := pb.PropertyOrder_ASCENDING
		if o.Descending {
			dir = pb.PropertyOrder_DESCENDING
		}
		pq.Order = append(pq.Order, &pb.PropertyOrder{
			Property:  &pb.PropertyReference{Name: o.Property},
			Direction: dir,
		})
	}

	var filters []*pb.Filter
	for _, f := range q.filters {
		pv, err := toProtoValue(f.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "filter on %q", f.Property)
		}
		filters = append(filters, propertyFilter(f.Property, f.Op, pv))
	}
	if q.ancestor != nil {
		pv := &pb.Value{ValueType: &pb.Value_KeyValue{KeyValue: toProtoKey(q.ancestor)}}
		filters = append(filters, propertyFilter("__key__", pb.PropertyFilter_HAS_ANCESTOR, pv))
	}
	if len(filters) != 0 {
		pq.Filter = &pb.Filter{
			FilterType: &pb.Filter_CompositeFilter{
				CompositeFilter: &pb.CompositeFilter{
					Op:      pb.CompositeFilter_AND,
					Filters: filters,
				},
			},
		}
	}

	return pq, nil
}

func propertyFilter(name string, op pb.PropertyFilter_Operator, pv *pb.Value) *pb.Filter {
	return &pb.Filter{
		FilterType: &pb.Filter_PropertyFilter{
			PropertyFilter: &pb.PropertyFilter{
				Property: &pb.PropertyReference{Name: name},
				Op:       op,
				Value:    pv,
			},
		},
	}
}
