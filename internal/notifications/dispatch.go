package notifications

import (
	"context"
	"log/slog"

	appErr "github.com/albapepper/scoracle-push/internal/errors"
	"github.com/albapepper/scoracle-push/internal/gateway"
	"github.com/albapepper/scoracle-push/internal/metrics"
)

// Partition splits msgs into consecutive batches of at most size. The last
// batch may be shorter. A non-positive size is treated as BatchSize.
func Partition(msgs []gateway.Message, size int) [][]gateway.Message {
	if size <= 0 {
		size = BatchSize
	}
	if len(msgs) == 0 {
		return nil
	}
	batches := make([][]gateway.Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := min(start+size, len(msgs))
		batches = append(batches, msgs[start:end:end])
	}
	return batches
}

// dispatch sends batches one after another and tallies each into out. A
// failed or rejected batch counts all of its messages as errors; later
// batches are still attempted.
func (e *Engine) dispatch(ctx context.Context, class string, msgs []gateway.Message, out *Outcome, logger *slog.Logger) {
	batches := Partition(msgs, BatchSize)
	for i, batch := range batches {
		out.Batches++
		res, err := e.gateway.Send(ctx, batch)
		switch {
		case err != nil:
			out.Errors += len(batch)
			metrics.DispatchBatches.WithLabelValues(class, "error").Inc()
			logger.Warn("Gateway batch failed",
				"batch", i+1, "of", len(batches), "error", appErr.GatewayBatch(i+1, len(batch), err))
		case !res.Accepted:
			out.Errors += len(batch)
			metrics.DispatchBatches.WithLabelValues(class, "rejected").Inc()
			logger.Warn("Gateway batch rejected",
				"batch", i+1, "of", len(batches), "size", len(batch),
				"status", res.StatusCode, "body", gateway.Truncate(res.Raw, 500))
		default:
			out.Success += len(batch)
			metrics.DispatchBatches.WithLabelValues(class, "accepted").Inc()
		}
	}
}
