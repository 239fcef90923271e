package metrics

import (
	"context"

	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// callHooks records call outcomes. It never rejects a call.
type callHooks struct {
	hooks.Nop
	c *Collector
}

// Hooks returns telemetry hooks that feed the collector.
func (c *Collector) Hooks() hooks.Hooks {
	return callHooks{c: c}
}

func (h callHooks) Success(_ context.Context, ev *hooks.SuccessEvent) error {
	h.c.RecordRequest(ev.EndpointID, ev.Method, ev.StatusCode, ev.Duration())
	h.c.RecordUsage(ev.EndpointID, ev.Model, ev.Usage)
	h.c.RecordResponseSize(ev.EndpointID, len(ev.ResponseBody))
	if ev.Streaming {
		h.c.RecordStream(ev.EndpointID, true)
	}
	return nil
}

func (h callHooks) Failure(_ context.Context, ev *hooks.FailureEvent) error {
	h.c.RecordRequest(ev.EndpointID, ev.Method, ev.StatusCode, ev.Duration())
	if ev.Streaming {
		h.c.RecordStream(ev.EndpointID, false)
	}
	return nil
}
