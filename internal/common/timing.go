package common

import (
	"context"
	"log"
	"time"
)

type ctxKey string

// RequestIDKey carries a request or tick identifier through a context.
const RequestIDKey ctxKey = "req_id"

// WithRequestID returns a context carrying id for Time to log.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// Time logs how long the named operation took. Use it as
//
//	defer common.Time(ctx, "forecast.Refresh")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID, _ := ctx.Value(RequestIDKey).(string)

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Printf("req_id=%s op=%s dur=%dms err=%v", reqID, name, dur.Milliseconds(), *errp)
			return
		}
		log.Printf("req_id=%s op=%s dur=%dms", reqID, name, dur.Milliseconds())
	}
}
