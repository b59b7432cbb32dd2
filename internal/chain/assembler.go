package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"callyard.app/switchboard/common/id"
	"callyard.app/switchboard/common/logger"
	"callyard.app/switchboard/internal/bus"
)

// Assembler builds linear chains: each stage's egress feeds the next
// stage's ingress over a chain-scoped topic.
type Assembler struct {
	bus      bus.Bus
	registry *Registry
}

func NewAssembler(b bus.Bus, registry *Registry) *Assembler {
	return &Assembler{bus: b, registry: registry}
}

// Chain is a running topology. It exists only as the set of live
// subscriptions it created; nothing about it is persisted.
type Chain struct {
	ID     string
	Stages []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Build wires the named stages into a running chain.
//
// Every intermediate topic is qualified by the chain id (<stage>.<chainID>),
// so multiple chains built from the same stage types get isolated
// namespaces and never cross-talk. The first stage keeps its default
// ingress; each later stage's ingress is the previous stage's chain-scoped
// egress. All subscriptions are live before Build returns.
func (a *Assembler) Build(ctx context.Context, stageNames []string) (*Chain, error) {
	if len(stageNames) == 0 {
		return nil, fmt.Errorf("chain needs at least one stage")
	}

	chainID := id.NewString()
	ctx, cancel := context.WithCancel(ctx)
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChainID: logger.Ptr(chainID)})

	c := &Chain{
		ID:     chainID,
		Stages: append([]string(nil), stageNames...),
		cancel: cancel,
	}

	var runners []*Runner
	var lastEgress string
	for _, name := range stageNames {
		stage, err := a.registry.Get(name)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("assembling chain %s: %w", chainID, err)
		}

		opts := stage.DefaultOptions().Clone()
		egress := fmt.Sprintf("%s.%s", name, chainID)
		opts.EgressTopics = append(opts.EgressTopics, egress)
		if lastEgress != "" {
			opts.IngressTopics = []string{lastEgress}
		}
		lastEgress = egress

		runner := NewRunner(a.bus, stage, opts)
		if err := runner.Start(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("assembling chain %s: %w", chainID, err)
		}
		runners = append(runners, runner)
	}

	for _, runner := range runners {
		c.wg.Add(1)
		go func(r *Runner) {
			defer c.wg.Done()
			if err := r.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "stage runner exited with error", "error", err)
			}
		}(runner)
	}

	slog.InfoContext(ctx, "chain assembled", "stages", stageNames)
	return c, nil
}

// Stop cancels every stage task and waits for in-flight messages to finish.
func (c *Chain) Stop() {
	c.cancel()
	c.wg.Wait()
}
