// Package dstrace is the tracing namespace of the dataset client.
//
// It only wraps OpenCensus: one span and one call count per RPC.
// Register AllViews with an exporter to collect the counts.
package dstrace

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
	"google.golang.org/grpc/status"
)

const spanPrefix = "go.mercari.io/dataset."

var (
	// Measures
	mRPCCount = stats.Int64("dataset/rpc_count", "The number of Datastore RPCs", stats.UnitDimensionless)

	// Tag Keys
	KeyMethod = tag.MustNewKey("method")
	KeyStatus = tag.MustNewKey("status")

	// Views
	RPCCountView = &view.View{
		Name:        "dataset/rpc_count",
		Description: "The number of Datastore RPCs by method and status",
		Measure:     mRPCCount,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyMethod, KeyStatus},
	}

	AllViews = []*view.View{RPCCountView}
)

// StartSpan starts a span named after the RPC method.
func StartSpan(ctx context.Context, method string) (context.Context, *trace.Span) {
	return trace.StartSpan(ctx, spanPrefix+method, trace.WithSpanKind(trace.SpanKindClient))
}

// EndSpan ends span, recording err as its status, and counts the call.
func EndSpan(ctx context.Context, span *trace.Span, method string, err error) {
	code := status.Code(err)
	if err != nil {
		span.SetStatus(trace.Status{Code: int32(code), Message: err.Error()})
	}
	span.End()

	// stats errors only occur for invalid tag values.
	_ = stats.RecordWithTags(ctx,
		[]tag.Mutator{
			tag.Upsert(KeyMethod, method),
			tag.Upsert(KeyStatus, code.String()),
		},
		mRPCCount.M(1),
	)
}
