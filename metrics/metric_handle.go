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
	"time"
)

// Constants for attribute QueueOp
const (
	QueueOpFree       = "Free"
	QueueOpInsertHead = "InsertHead"
	QueueOpInsertTail = "InsertTail"
	QueueOpNew        = "New"
	QueueOpRemoveHead = "RemoveHead"
	QueueOpReverse    = "Reverse"
	QueueOpShow       = "Show"
	QueueOpSize       = "Size"
)

// Constants for attribute QueueErrorCategory
const (
	QueueErrorCategoryABSENTQUEUE        = "ABSENT_QUEUE"
	QueueErrorCategoryALLOCATORMISUSE    = "ALLOCATOR_MISUSE"
	QueueErrorCategoryEMPTYQUEUE         = "EMPTY_QUEUE"
	QueueErrorCategoryINVARIANTVIOLATION = "INVARIANT_VIOLATION"
	QueueErrorCategoryLEAK               = "LEAK"
	QueueErrorCategoryMISMATCH           = "MISMATCH"
	QueueErrorCategoryOUTOFMEMORY        = "OUT_OF_MEMORY"
)

// MetricHandle records measurements of the operations the interpreter runs
// against a queue.
type MetricHandle interface {
	// QueueOpsCount counts queue operations.
	QueueOpsCount(ctx context.Context, inc int64, queueOp string)

	// QueueOpsErrorCount counts failed queue operations by error category.
	QueueOpsErrorCount(ctx context.Context, inc int64, queueErrorCategory string, queueOp string)

	// QueueOpsLatency records the time taken by a queue operation.
	QueueOpsLatency(ctx context.Context, duration time.Duration, queueOp string)

	// QueueLength records the number of elements after an operation.
	QueueLength(ctx context.Context, length int64)

	// AllocLiveBlocks records the number of blocks currently allocated.
	AllocLiveBlocks(ctx context.Context, blocks int64)
}
