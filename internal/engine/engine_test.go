package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"MarketScanner/internal/domain"
)

func appendStep(name string) Step[[]string] {
	return Step[[]string]{
		Name: name,
		Run: func(_ context.Context, state []string) ([]string, error) {
			return append(state, name), nil
		},
	}
}

func TestExecuteThreadsStateThroughSteps(t *testing.T) {
	t.Parallel()

	def := Definition[[]string]{
		Name:  "demo",
		Steps: []Step[[]string]{appendStep("one"), appendStep("two"), appendStep("three")},
	}

	state, run := Execute(context.Background(), def, nil, nil)

	require.Equal(t, []string{"one", "two", "three"}, state)
	require.Equal(t, domain.RunCompleted, run.Status)
	require.Equal(t, "demo", run.Pipeline)
	require.Equal(t, []string{"one", "two", "three"}, run.Steps)
	require.NotEqual(t, uuid.Nil, run.ID)
	require.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestExecuteFatalErrorStopsPipeline(t *testing.T) {
	t.Parallel()

	boom := errors.New("store unreachable")

	def := Definition[[]string]{
		Name: "demo",
		Steps: []Step[[]string]{
			appendStep("one"),
			{Name: "two", Run: func(_ context.Context, state []string) ([]string, error) {
				return append(state, "two"), fmt.Errorf("persist batch: %w", boom)
			}},
			appendStep("three"),
		},
	}

	state, run := Execute(context.Background(), def, nil, nil)

	require.Equal(t, domain.RunFailed, run.Status)
	require.Equal(t, "two", run.FailedStep)
	require.Contains(t, run.Err, "store unreachable")
	require.Equal(t, []string{"one", "two"}, run.Steps)
	require.Equal(t, []string{"one", "two"}, state)
	require.False(t, run.FinishedAt.IsZero())
}

func TestExecuteErrStopEndsRunAsCompleted(t *testing.T) {
	t.Parallel()

	def := Definition[[]string]{
		Name: "demo",
		Steps: []Step[[]string]{
			appendStep("one"),
			{Name: "two", Run: func(_ context.Context, state []string) ([]string, error) {
				return state, fmt.Errorf("nothing to do: %w", ErrStop)
			}},
			appendStep("three"),
		},
	}

	state, run := Execute(context.Background(), def, nil, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Empty(t, run.FailedStep)
	require.Equal(t, []string{"one", "two"}, run.Steps)
	require.Equal(t, []string{"one"}, state)
}

func TestExecutePartialHook(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		partial bool
		want    domain.RunStatus
	}{
		{name: "item failures downgrade the run", partial: true, want: domain.RunPartialFailure},
		{name: "clean state stays completed", partial: false, want: domain.RunCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			def := Definition[[]string]{
				Name:    "demo",
				Steps:   []Step[[]string]{appendStep("one")},
				Partial: func([]string) bool { return tc.partial },
			}

			_, run := Execute(context.Background(), def, nil, nil)
			require.Equal(t, tc.want, run.Status)
		})
	}
}

func TestExecutePartialHookIgnoredOnFatalError(t *testing.T) {
	t.Parallel()

	def := Definition[[]string]{
		Name: "demo",
		Steps: []Step[[]string]{
			{Name: "one", Run: func(_ context.Context, state []string) ([]string, error) {
				return state, errors.New("boom")
			}},
		},
		Partial: func([]string) bool { return true },
	}

	_, run := Execute(context.Background(), def, nil, nil)
	require.Equal(t, domain.RunFailed, run.Status)
}
