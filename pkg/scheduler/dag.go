// Package scheduler executes a dependency graph of agents. Nodes run as
// goroutines that first await the completion signals of everything in their
// depends_on set; failed or cancelled dependencies cancel the dependent
// without running it. Luxury nodes are omitted when the policy does not
// enable them, speculative nodes when the host is degraded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/umami-labs/brigade/pkg/models"
)

// ErrCycle is returned by Execute when the graph is not acyclic. A cycle is
// a programming error, not a runtime condition.
var ErrCycle = errors.New("agent graph contains a cycle")

// ErrUnknownDependency is returned when a node depends on a name that was
// never added.
var ErrUnknownDependency = errors.New("agent graph references unknown dependency")

// NodeFunc is the unit of work for one vertex. args carries the node's
// static args with dependency results injected.
type NodeFunc func(ctx context.Context, args map[string]any) (any, error)

// Node is one scheduler vertex.
type Node struct {
	Name          string
	Run           NodeFunc
	Args          map[string]any
	DependsOn     []string
	IsLuxury      bool
	IsSpeculative bool
	Priority      int
}

// Result is the outcome of one node. DependsOn echoes the node's declared
// dependency set so invocation records can carry it.
type Result struct {
	Value     any
	Err       error
	Status    models.InvocationStatus
	Reason    string
	DependsOn []string
	StartedAt time.Time
	EndedAt   time.Time
}

// Cancelled reports whether the node never ran.
func (r *Result) Cancelled() bool {
	return r.Status == models.InvocationCancelled || r.Status == models.InvocationPruned
}

// nodeState is the arena record for one vertex: the node, its completion
// signal, and its result. Results are written once, before done is closed.
type nodeState struct {
	node   *Node
	done   chan struct{}
	result Result
}

// Scheduler holds the graph for one request. Not safe for concurrent
// AddNode/Execute; build the graph, then execute once.
type Scheduler struct {
	nodes map[string]*nodeState
	order []string // insertion order, for deterministic pruning logs

	mu        sync.Mutex
	cancelAll context.CancelFunc
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{nodes: make(map[string]*nodeState)}
}

// AddNode registers a vertex. Re-adding a name replaces the previous node.
func (s *Scheduler) AddNode(n Node) {
	if _, exists := s.nodes[n.Name]; !exists {
		s.order = append(s.order, n.Name)
	}
	s.nodes[n.Name] = &nodeState{
		node: &n,
		done: make(chan struct{}),
	}
}

// Execute runs the graph under the given policy. degraded prunes speculative
// nodes. Returns the per-node results; individual node failures are recorded
// in the results, not returned as an error. The only error returns are graph
// integrity violations caught before anything runs.
func (s *Scheduler) Execute(ctx context.Context, policy *models.ExecutionPolicy, degraded bool) (map[string]*Result, error) {
	if err := s.checkAcyclic(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelAll = cancel
	s.mu.Unlock()

	// Pruning pass: mark omitted nodes complete-with-pruned so dependents
	// unblock immediately.
	for _, name := range s.order {
		st := s.nodes[name]
		switch {
		case st.node.IsLuxury && policy != nil && !policy.AgentEnabled(name):
			s.finish(st, Result{Status: models.InvocationPruned, Reason: "luxury agent not in policy set"})
			slog.Debug("Pruned luxury node", "node", name)
		case st.node.IsSpeculative && degraded:
			s.finish(st, Result{Status: models.InvocationPruned, Reason: "speculative agent pruned under pressure"})
			slog.Debug("Pruned speculative node", "node", name)
		}
	}

	var wg sync.WaitGroup
	for _, name := range s.order {
		st := s.nodes[name]
		if st.finished() {
			continue
		}
		wg.Add(1)
		go func(st *nodeState) {
			defer wg.Done()
			s.runNode(runCtx, st)
		}(st)
	}
	wg.Wait()

	results := make(map[string]*Result, len(s.nodes))
	for name, st := range s.nodes {
		r := st.result
		r.DependsOn = st.node.DependsOn
		results[name] = &r
	}
	return results, nil
}

// CancelAll cancels every live node. Cooperative: nodes observe it at their
// next await point.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	cancel := s.cancelAll
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Scheduler) runNode(ctx context.Context, st *nodeState) {
	name := st.node.Name

	// Await every dependency's completion signal.
	for _, dep := range st.node.DependsOn {
		depState := s.nodes[dep]
		select {
		case <-depState.done:
		case <-ctx.Done():
			s.finish(st, Result{
				Status: models.InvocationCancelled,
				Reason: "cancelled while waiting on " + dep,
				Err:    ctx.Err(),
			})
			return
		}
	}

	// A failed or cancelled dependency cancels this node without running.
	for _, dep := range st.node.DependsOn {
		depState := s.nodes[dep]
		if depState.result.Err != nil || depState.result.Cancelled() {
			s.finish(st, Result{
				Status: models.InvocationCancelled,
				Reason: fmt.Sprintf("dependency %s %s", dep, depState.result.Status),
			})
			return
		}
	}

	// Lightweight dependency injection: a string arg naming a prior node is
	// replaced with that node's result at start time.
	args := make(map[string]any, len(st.node.Args))
	for k, v := range st.node.Args {
		if ref, ok := v.(string); ok {
			if depState, exists := s.nodes[ref]; exists && depState.finished() {
				args[k] = depState.result.Value
				continue
			}
		}
		args[k] = v
	}
	for _, dep := range st.node.DependsOn {
		if _, taken := args[dep]; !taken {
			args[dep] = s.nodes[dep].result.Value
		}
	}

	started := time.Now()
	value, err := st.node.Run(ctx, args)
	ended := time.Now()

	result := Result{Value: value, Err: err, StartedAt: started, EndedAt: ended}
	switch {
	case err == nil:
		result.Status = models.InvocationCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Status = models.InvocationCancelled
		result.Reason = err.Error()
	default:
		result.Status = models.InvocationFailed
		result.Reason = err.Error()
		slog.Warn("Agent node failed", "node", name, "error", err)
	}
	s.finish(st, result)
}

func (s *Scheduler) finish(st *nodeState, r Result) {
	st.result = r
	close(st.done)
}

func (st *nodeState) finished() bool {
	select {
	case <-st.done:
		return true
	default:
		return false
	}
}

// checkAcyclic validates dependencies exist and the graph has a topological
// order. Runs before any node starts.
func (s *Scheduler) checkAcyclic() error {
	indegree := make(map[string]int, len(s.nodes))
	dependents := make(map[string][]string, len(s.nodes))
	for name, st := range s.nodes {
		indegree[name] += 0
		for _, dep := range st.node.DependsOn {
			if _, ok := s.nodes[dep]; !ok {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(s.nodes))
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(s.nodes) {
		return ErrCycle
	}
	return nil
}
