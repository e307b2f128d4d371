// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// queueOpKey specifies the queue operation like InsertHead, Reverse etc.
	queueOpKey = attribute.Key("queue_op")
	// queueErrCategoryKey specifies the error category. The intention is to
	// reduce the cardinality of errors by grouping them together.
	queueErrCategoryKey = attribute.Key("queue_error_category")

	queueOpsOptionCache,
	queueOpsErrorCategoryOptionCache sync.Map
)

type opErrorCategory struct {
	queueOp       string
	errorCategory string
}

func loadOrStoreAttrOption[K comparable](mp *sync.Map, key K, attrSetGenFunc func() attribute.Set) metric.MeasurementOption {
	attrSet, ok := mp.Load(key)
	if ok {
		return attrSet.(metric.MeasurementOption)
	}
	v, _ := mp.LoadOrStore(key, metric.WithAttributeSet(attrSetGenFunc()))
	return v.(metric.MeasurementOption)
}

func queueOpsAttrOption(queueOp string) metric.MeasurementOption {
	return loadOrStoreAttrOption(&queueOpsOptionCache, queueOp,
		func() attribute.Set {
			return attribute.NewSet(queueOpKey.String(queueOp))
		})
}

func queueOpsErrorCategoryAttrOption(attr opErrorCategory) metric.MeasurementOption {
	return loadOrStoreAttrOption(&queueOpsErrorCategoryOptionCache, attr,
		func() attribute.Set {
			return attribute.NewSet(queueOpKey.String(attr.queueOp), queueErrCategoryKey.String(attr.errorCategory))
		})
}

// otelMetrics maintains the list of all metrics computed by the interpreter.
type otelMetrics struct {
	queueOpsCount      metric.Int64Counter
	queueOpsErrorCount metric.Int64Counter
	queueOpsLatency    metric.Int64Histogram
	queueLength        metric.Int64Gauge
	allocLiveBlocks    metric.Int64Gauge
}

func (o *otelMetrics) QueueOpsCount(ctx context.Context, inc int64, queueOp string) {
	o.queueOpsCount.Add(ctx, inc, queueOpsAttrOption(queueOp))
}

func (o *otelMetrics) QueueOpsErrorCount(ctx context.Context, inc int64, queueErrorCategory string, queueOp string) {
	o.queueOpsErrorCount.Add(ctx, inc, queueOpsErrorCategoryAttrOption(opErrorCategory{queueOp: queueOp, errorCategory: queueErrorCategory}))
}

func (o *otelMetrics) QueueOpsLatency(ctx context.Context, duration time.Duration, queueOp string) {
	o.queueOpsLatency.Record(ctx, duration.Microseconds(), queueOpsAttrOption(queueOp))
}

func (o *otelMetrics) QueueLength(ctx context.Context, length int64) {
	o.queueLength.Record(ctx, length)
}

func (o *otelMetrics) AllocLiveBlocks(ctx context.Context, blocks int64) {
	o.allocLiveBlocks.Record(ctx, blocks)
}

// NewOTelMetrics returns a MetricHandle backed by the global meter provider.
func NewOTelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("qtest")

	queueOpsCount, err1 := meter.Int64Counter("queue/ops_count",
		metric.WithDescription("The cumulative number of ops processed by the queue."),
		metric.WithUnit(""))
	queueOpsErrorCount, err2 := meter.Int64Counter("queue/ops_error_count",
		metric.WithDescription("The cumulative number of errors generated by queue operations."),
		metric.WithUnit(""))
	queueOpsLatency, err3 := meter.Int64Histogram("queue/ops_latency",
		metric.WithDescription("The cumulative distribution of queue operation latencies."),
		metric.WithUnit("us"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 50000, 100000, 1000000))
	queueLength, err4 := meter.Int64Gauge("queue/length",
		metric.WithDescription("The number of elements in the queue after the last operation."),
		metric.WithUnit(""))
	allocLiveBlocks, err5 := meter.Int64Gauge("alloc/live_blocks",
		metric.WithDescription("The number of blocks handed out by the allocator and not yet freed."),
		metric.WithUnit(""))

	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, err
	}

	return &otelMetrics{
		queueOpsCount:      queueOpsCount,
		queueOpsErrorCount: queueOpsErrorCount,
		queueOpsLatency:    queueOpsLatency,
		queueLength:        queueLength,
		allocLiveBlocks:    allocLiveBlocks,
	}, nil
}
