package chain

import (
	"context"
	"fmt"
	"log/slog"

	"callyard.app/switchboard/common/logger"
	"callyard.app/switchboard/internal/bus"
)

// Runner drives one stage: a long-lived loop over the stage's ingress
// subscription. Per-message failures are caught at the loop boundary and
// reported; only context cancellation ends the loop.
type Runner struct {
	bus   bus.Bus
	stage Stage
	opts  Options
	sub   bus.Subscription
}

func NewRunner(b bus.Bus, stage Stage, opts Options) *Runner {
	return &Runner{bus: b, stage: stage, opts: opts}
}

// Start opens the ingress subscription. Separated from Run so an assembler
// can guarantee every stage is subscribed before anything is published into
// the chain.
func (r *Runner) Start(ctx context.Context) error {
	if len(r.opts.IngressTopics) == 0 {
		return fmt.Errorf("stage %s: no ingress topics", r.stage.Name())
	}
	sub, err := r.bus.Subscribe(ctx, r.opts.IngressTopics...)
	if err != nil {
		return fmt.Errorf("stage %s: %w", r.stage.Name(), err)
	}
	r.sub = sub
	return nil
}

// Run consumes messages until ctx is cancelled. Start must have been
// called. In-flight message processing finishes before exit.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Stage:     logger.Ptr(r.stage.Name()),
		Component: "switchboard.chain.runner",
	})
	defer r.sub.Close()

	slog.InfoContext(ctx, "stage started",
		"ingress", r.opts.IngressTopics,
		"egress", r.opts.EgressTopics)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "stage stopping")
			return nil
		case msg, ok := <-r.sub.Messages():
			if !ok {
				slog.InfoContext(ctx, "stage subscription closed")
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

// handle processes one message with fault isolation: an error or panic in
// the stage must not stop the next message.
func (r *Runner) handle(ctx context.Context, msg bus.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(msg.Payload),
		Topic:          logger.Ptr(msg.Topic),
	})

	forward, err := r.processSafe(ctx, msg.Payload)
	if err != nil {
		slog.ErrorContext(ctx, "stage processing failed", "error", err)
		return
	}
	if !forward {
		slog.DebugContext(ctx, "stage suppressed propagation")
		return
	}

	for _, topic := range r.opts.EgressTopics {
		if err := r.bus.Publish(ctx, topic, msg.Payload); err != nil {
			slog.ErrorContext(ctx, "stage egress publish failed",
				"egress_topic", topic, "error", err)
		}
	}
}

func (r *Runner) processSafe(ctx context.Context, conversationID string) (forward bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered in stage", "panic", rec)
			forward, err = false, fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.stage.Process(ctx, conversationID, r.opts)
}
