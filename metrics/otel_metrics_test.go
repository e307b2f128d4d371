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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
)

func setupOTel(t *testing.T) (*otelMetrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	m, err := NewOTelMetrics()
	require.NoError(t, err)
	return m, reader
}

func TestQueueOpsCount(t *testing.T) {
	ctx := context.Background()
	m, reader := setupOTel(t)

	m.QueueOpsCount(ctx, 3, QueueOpInsertTail)
	m.QueueOpsCount(ctx, 2, QueueOpInsertTail)
	m.QueueOpsCount(ctx, 1, QueueOpReverse)

	VerifyCounterMetric(t, ctx, reader, "queue/ops_count", attribute.NewSet(attribute.String("queue_op", QueueOpInsertTail)), 5)
	VerifyCounterMetric(t, ctx, reader, "queue/ops_count", attribute.NewSet(attribute.String("queue_op", QueueOpReverse)), 1)
}

func TestQueueOpsErrorCount(t *testing.T) {
	ctx := context.Background()
	m, reader := setupOTel(t)

	m.QueueOpsErrorCount(ctx, 1, QueueErrorCategoryEMPTYQUEUE, QueueOpRemoveHead)
	m.QueueOpsErrorCount(ctx, 1, QueueErrorCategoryEMPTYQUEUE, QueueOpRemoveHead)
	m.QueueOpsErrorCount(ctx, 1, QueueErrorCategoryOUTOFMEMORY, QueueOpInsertHead)

	VerifyCounterMetric(t, ctx, reader, "queue/ops_error_count",
		attribute.NewSet(attribute.String("queue_op", QueueOpRemoveHead), attribute.String("queue_error_category", QueueErrorCategoryEMPTYQUEUE)), 2)
	VerifyCounterMetric(t, ctx, reader, "queue/ops_error_count",
		attribute.NewSet(attribute.String("queue_op", QueueOpInsertHead), attribute.String("queue_error_category", QueueErrorCategoryOUTOFMEMORY)), 1)
}

func TestQueueOpsLatency(t *testing.T) {
	ctx := context.Background()
	m, reader := setupOTel(t)

	m.QueueOpsLatency(ctx, 3*time.Microsecond, QueueOpReverse)
	m.QueueOpsLatency(ctx, 2*time.Millisecond, QueueOpReverse)

	VerifyHistogramMetric(t, ctx, reader, "queue/ops_latency", attribute.NewSet(attribute.String("queue_op", QueueOpReverse)), 2)
}

func TestQueueLengthAndLiveBlocks(t *testing.T) {
	ctx := context.Background()
	m, reader := setupOTel(t)

	m.QueueLength(ctx, 4)
	m.QueueLength(ctx, 7)
	m.AllocLiveBlocks(ctx, 15)

	VerifyGaugeMetric(t, ctx, reader, "queue/length", 7)
	VerifyGaugeMetric(t, ctx, reader, "alloc/live_blocks", 15)
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.QueueOpsCount(ctx, 1, QueueOpNew)
		m.QueueOpsErrorCount(ctx, 1, QueueErrorCategoryLEAK, QueueOpFree)
		m.QueueOpsLatency(ctx, time.Second, QueueOpFree)
		m.QueueLength(ctx, 0)
		m.AllocLiveBlocks(ctx, 0)
	})
}
