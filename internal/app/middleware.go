package app

import (
	"context"

	"nightbot/internal/observability/metrics"
	"nightbot/internal/transport"
	"nightbot/internal/transport/telegram/router"
)

func countUpdates(m *metrics.Metrics) router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			m.ObserveUpdate(updateKind(req))
			return next(ctx, req)
		}
	}
}

func updateKind(req *router.Request) string {
	switch {
	case req.Update.Kind == transport.UpdateCallback:
		return "callback"
	case req.Command != "":
		return "command"
	case req.Message() != nil && req.Message().Media != nil:
		return "media"
	default:
		return "message"
	}
}
