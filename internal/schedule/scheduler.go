package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vaultctl/internal/model"
)

// Node is one schedulable unit with the ids it depends on.
type Node struct {
	ID        string
	DependsOn []string
}

// Order layers nodes topologically. Every node in a layer depends only on
// nodes in earlier layers; ids within a layer are sorted.
func Order(nodes []Node) ([][]string, error) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))

	for _, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			return nil, model.NewValidationError("id", "unit id is empty")
		}
		if _, dup := indegree[n.ID]; dup {
			return nil, model.NewValidationError("id", "duplicate unit id %q", n.ID)
		}
		indegree[n.ID] = 0
	}
	for _, n := range nodes {
		seen := make(map[string]bool, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if _, ok := indegree[dep]; !ok {
				return nil, model.NewValidationError(n.ID, "unknown dependency %q", dep)
			}
			if dep == n.ID {
				return nil, model.NewValidationError(n.ID, "unit depends on itself")
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	var layers [][]string
	placed := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		layers = append(layers, ready)
		placed += len(ready)

		var next []string
		for _, id := range ready {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		ready = next
	}

	if placed != len(nodes) {
		var cyclic []string
		for id, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return nil, model.NewValidationError("depends_on", "dependency cycle among %s", strings.Join(cyclic, ", "))
	}
	return layers, nil
}

// Status of a node after a run.
type Status string

const (
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
)

// Result is the outcome of one node.
type Result struct {
	ID        string
	Layer     int
	Status    Status
	Err       error
	BlockedBy string
	Duration  time.Duration
}

// Report collects node results in execution order.
type Report struct {
	Results []Result
}

// Failed reports whether any node failed or was skipped.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status != Succeeded {
			return true
		}
	}
	return false
}

// Result returns the outcome for id.
func (r Report) Result(id string) (Result, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return Result{}, false
}

// Scheduler runs nodes layer by layer with bounded concurrency.
type Scheduler struct {
	Concurrency int
	Logger      *zap.Logger
}

// Run executes fn once per node. A node runs only when all of its
// dependencies succeeded; otherwise it is skipped and BlockedBy names the
// first dependency that did not succeed. The returned error is non-nil only
// when the graph itself is invalid.
func (s *Scheduler) Run(ctx context.Context, nodes []Node, fn func(ctx context.Context, id string) error) (Report, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := s.Concurrency
	if limit <= 0 {
		limit = 1
	}

	layers, err := Order(nodes)
	if err != nil {
		return Report{}, err
	}
	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = n.DependsOn
	}

	var (
		mu     sync.Mutex
		status = make(map[string]Status, len(nodes))
		report Report
	)
	record := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		status[res.ID] = res.Status
		report.Results = append(report.Results, res)
	}

	for layerIdx, layer := range layers {
		logger.Info("schedule layer", zap.Int("layer", layerIdx), zap.Strings("units", layer))

		var g errgroup.Group
		g.SetLimit(limit)
		for _, id := range layer {
			id := id
			mu.Lock()
			blocker := blockedBy(deps[id], status)
			mu.Unlock()
			if blocker != "" {
				logger.Warn("unit skipped", zap.String("unit", id), zap.String("blocked_by", blocker))
				record(Result{ID: id, Layer: layerIdx, Status: Skipped, BlockedBy: blocker})
				continue
			}
			if err := ctx.Err(); err != nil {
				record(Result{ID: id, Layer: layerIdx, Status: Skipped, Err: err})
				continue
			}

			g.Go(func() error {
				start := time.Now()
				err := fn(ctx, id)
				res := Result{ID: id, Layer: layerIdx, Status: Succeeded, Duration: time.Since(start)}
				if err != nil {
					res.Status = Failed
					res.Err = err
					logger.Error("unit failed", zap.String("unit", id), zap.Error(err))
				}
				record(res)
				return nil
			})
		}
		_ = g.Wait()
	}

	return report, nil
}

func blockedBy(deps []string, status map[string]Status) string {
	for _, dep := range deps {
		if status[dep] != Succeeded {
			return dep
		}
	}
	return ""
}

func (r Result) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %s (%v)", r.ID, r.Status, r.Err)
	case r.BlockedBy != "":
		return fmt.Sprintf("%s: %s (blocked by %s)", r.ID, r.Status, r.BlockedBy)
	default:
		return fmt.Sprintf("%s: %s", r.ID, r.Status)
	}
}
