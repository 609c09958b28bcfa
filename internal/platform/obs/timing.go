package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Time logs the duration of an operation. Usage:
//
//	defer obs.Time(ctx, "routes.select")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	return func(errp *error) {
		fields := []zap.Field{
			zap.String("req_id", RequestID(ctx)),
			zap.String("op", name),
			zap.Int64("dur_ms", time.Since(start).Milliseconds()),
		}

		log := FromContext(ctx)
		if errp != nil && *errp != nil {
			log.Warn("operation failed", append(fields, zap.Error(*errp))...)
			return
		}
		log.Debug("operation done", fields...)
	}
}
