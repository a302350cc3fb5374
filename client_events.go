package goAdmin

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goAdmin/internal/renewal"
	"github.com/MrEthical07/goAdmin/internal/transport"
)

// renewalEvents connects the coordinator lifecycle to metrics, audit and the
// session store. Callbacks run on coordinator goroutines and must not block.
func (c *Client) renewalEvents() renewal.Events {
	return renewal.Events{
		RenewalStarted: func(trigger *transport.Descriptor) {
			c.metricInc(MetricRenewalStarted)
			c.emitAudit(context.Background(), descriptorEvent(AuditRenewalStarted, trigger))
		},
		RenewalFinished: func(trigger *transport.Descriptor, released int, elapsed time.Duration, err error) {
			if c.metrics != nil {
				c.metrics.Observe(MetricRenewalLatency, elapsed)
			}

			ev := descriptorEvent(AuditRenewalSucceeded, trigger)
			ev.Metadata = map[string]string{
				"released":   strconv.Itoa(released),
				"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
			}
			if err != nil {
				c.metricInc(MetricRenewalFailed)
				if errors.Is(err, renewal.ErrTimeout) {
					c.metricInc(MetricRenewalTimeout)
				}
				ev.EventType = AuditRenewalFailed
				ev.Error = err.Error()
				c.emitAudit(context.Background(), ev)
				return
			}

			c.metricInc(MetricRenewalSucceeded)
			ev.Success = true
			c.emitAudit(context.Background(), ev)
			c.persistSession(context.Background())
		},
		Queued: func(*transport.Descriptor, int) {
			c.metricInc(MetricWaiterQueued)
		},
		Overflow: func(d *transport.Descriptor) {
			c.metricInc(MetricQueueOverflow)
			c.log.Warn("renewal queue full", "request_id", d.ID, "method", d.Method, "path", d.Path)
			c.emitAudit(context.Background(), descriptorEvent(AuditQueueOverflow, d))
		},
		Replayed: func(*transport.Descriptor, error) {
			c.metricInc(MetricReplay)
		},
		ReplayRejected: func(d *transport.Descriptor) {
			c.metricInc(MetricAuthFailure)
			c.metricInc(MetricReplayFailure)
			c.log.Warn("request rejected after renewal", "request_id", d.ID, "method", d.Method, "path", d.Path)
			c.emitAudit(context.Background(), descriptorEvent(AuditReplayRejected, d))
		},
		ForcedLogout: func(cause error) {
			c.metricInc(MetricForcedLogout)
			c.dropSession(context.Background())
			c.emitAudit(context.Background(), AuditEvent{
				EventType: AuditForcedLogout,
				Error:     errString(cause),
			})
		},
	}
}

func descriptorEvent(eventType string, d *transport.Descriptor) AuditEvent {
	ev := AuditEvent{EventType: eventType}
	if d != nil {
		ev.RequestID = d.ID
		ev.Method = d.Method
		ev.Path = d.Path
	}
	return ev
}

func (c *Client) emitAudit(ctx context.Context, ev AuditEvent) {
	if c.audit == nil {
		return
	}
	if ev.RequestID == "" {
		ev.RequestID = requestIDFromContext(ctx)
	}
	c.audit.Emit(ctx, ev)
}
