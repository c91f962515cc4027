package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/models"
)

func noopPolicy(enabled ...string) *models.ExecutionPolicy {
	set := map[string]bool{}
	for _, name := range enabled {
		set[name] = true
	}
	return &models.ExecutionPolicy{EnabledAgents: set}
}

func constant(v any) NodeFunc {
	return func(ctx context.Context, args map[string]any) (any, error) { return v, nil }
}

func TestExecuteRespectsDependencyOrder(t *testing.T) {
	s := New()

	var mu sync.Mutex
	var order []string
	record := func(name string, delay time.Duration) NodeFunc {
		return func(ctx context.Context, args map[string]any) (any, error) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	s.AddNode(Node{Name: "a", Run: record("a", 20*time.Millisecond)})
	s.AddNode(Node{Name: "b", Run: record("b", 0), DependsOn: []string{"a"}})
	s.AddNode(Node{Name: "c", Run: record("c", 0), DependsOn: []string{"b"}})

	results, err := s.Execute(context.Background(), noopPolicy(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, models.InvocationCompleted, results["c"].Status)
	assert.True(t, !results["b"].StartedAt.Before(results["a"].EndedAt),
		"b must start strictly after a completes")

	// Results echo the declared dependency sets for invocation records.
	assert.Empty(t, results["a"].DependsOn)
	assert.Equal(t, []string{"a"}, results["b"].DependsOn)
	assert.Equal(t, []string{"b"}, results["c"].DependsOn)
}

func TestExecuteParallelIndependentNodes(t *testing.T) {
	s := New()

	started := make(chan string, 2)
	release := make(chan struct{})
	blocker := func(name string) NodeFunc {
		return func(ctx context.Context, args map[string]any) (any, error) {
			started <- name
			<-release
			return name, nil
		}
	}

	s.AddNode(Node{Name: "left", Run: blocker("left")})
	s.AddNode(Node{Name: "right", Run: blocker("right")})

	go func() {
		// Both must be running concurrently before either can finish.
		<-started
		<-started
		close(release)
	}()

	results, err := s.Execute(context.Background(), noopPolicy(), false)
	require.NoError(t, err)
	assert.Equal(t, models.InvocationCompleted, results["left"].Status)
	assert.Equal(t, models.InvocationCompleted, results["right"].Status)
}

func TestDependencyResultInjection(t *testing.T) {
	s := New()

	s.AddNode(Node{Name: "intent", Run: constant("parsed-intent")})
	s.AddNode(Node{
		Name: "recipe",
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return args["source"], nil
		},
		Args:      map[string]any{"source": "intent"},
		DependsOn: []string{"intent"},
	})

	results, err := s.Execute(context.Background(), noopPolicy(), false)
	require.NoError(t, err)
	assert.Equal(t, "parsed-intent", results["recipe"].Value)
}

func TestFailedDependencyCancelsDownstream(t *testing.T) {
	s := New()

	boom := errors.New("boom")
	s.AddNode(Node{Name: "base", Run: func(ctx context.Context, args map[string]any) (any, error) {
		return nil, boom
	}})
	s.AddNode(Node{Name: "dependent", Run: constant("x"), DependsOn: []string{"base"}})
	s.AddNode(Node{Name: "grandchild", Run: constant("y"), DependsOn: []string{"dependent"}})

	results, err := s.Execute(context.Background(), noopPolicy(), false)
	require.NoError(t, err, "node failures are results, not Execute errors")
	assert.Equal(t, models.InvocationFailed, results["base"].Status)
	assert.Equal(t, models.InvocationCancelled, results["dependent"].Status)
	assert.Equal(t, models.InvocationCancelled, results["grandchild"].Status)
}

func TestLuxuryPruning(t *testing.T) {
	s := New()
	ran := false

	s.AddNode(Node{Name: "core", Run: constant("core")})
	s.AddNode(Node{Name: "recipe_renderer", IsLuxury: true, Run: func(ctx context.Context, args map[string]any) (any, error) {
		ran = true
		return nil, nil
	}})

	results, err := s.Execute(context.Background(), noopPolicy("core"), false)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, models.InvocationPruned, results["recipe_renderer"].Status)
	assert.Equal(t, models.InvocationCompleted, results["core"].Status)
}

func TestSpeculativePruningUnderDegradation(t *testing.T) {
	s := New()
	s.AddNode(Node{Name: "spec", IsSpeculative: true, Run: constant("x")})

	results, err := s.Execute(context.Background(), noopPolicy("spec"), true)
	require.NoError(t, err)
	assert.Equal(t, models.InvocationPruned, results["spec"].Status)
}

func TestCancelAll(t *testing.T) {
	s := New()

	running := make(chan struct{})
	s.AddNode(Node{Name: "slow", Run: func(ctx context.Context, args map[string]any) (any, error) {
		close(running)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	s.AddNode(Node{Name: "after", Run: constant("x"), DependsOn: []string{"slow"}})

	go func() {
		<-running
		s.CancelAll()
	}()

	results, err := s.Execute(context.Background(), noopPolicy(), false)
	require.NoError(t, err)
	assert.Equal(t, models.InvocationCancelled, results["slow"].Status)
	assert.Equal(t, models.InvocationCancelled, results["after"].Status)
}

func TestCycleRejected(t *testing.T) {
	s := New()
	s.AddNode(Node{Name: "a", Run: constant("a"), DependsOn: []string{"b"}})
	s.AddNode(Node{Name: "b", Run: constant("b"), DependsOn: []string{"a"}})

	_, err := s.Execute(context.Background(), noopPolicy(), false)
	require.ErrorIs(t, err, ErrCycle)
}

func TestUnknownDependencyRejected(t *testing.T) {
	s := New()
	s.AddNode(Node{Name: "a", Run: constant("a"), DependsOn: []string{"ghost"}})

	_, err := s.Execute(context.Background(), noopPolicy(), false)
	require.ErrorIs(t, err, ErrUnknownDependency)
}
