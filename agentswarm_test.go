package agentswarm

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentswarm/config"
	"github.com/hupe1980/agentswarm/controller"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/frontend"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func startSwarm(t *testing.T, optFns ...func(o *Options)) *Swarm {
	t.Helper()
	s, err := New(optFns...)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func ask(t *testing.T, s *Swarm, text string) core.UserOutput {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	out, err := s.Ask(ctx, text)
	require.NoError(t, err)
	return out
}

func TestSwarm_AskWithStubs(t *testing.T) {
	var stages []controller.Stage
	s := startSwarm(t, func(o *Options) {
		o.OnTransition = func(tr controller.Transition) { stages = append(stages, tr.To) }
	})

	out := ask(t, s, "build X")
	assert.True(t, out.Final)
	assert.False(t, out.Failed)
	assert.Contains(t, out.Text, "Review verdict: LGTM")

	rec, ok := s.History().Get(out.RequestID)
	require.True(t, ok)
	assert.Equal(t, controller.StageDone, rec.Stage)
	assert.Equal(t, "build X", rec.Request)
	assert.Equal(t, out.Text, rec.Answer)

	require.NoError(t, s.Stop(context.Background()))
	<-s.Done()
	assert.Equal(t, []controller.Stage{
		controller.StagePlanning, controller.StageCoding, controller.StageReview, controller.StageDone,
	}, stages)
	assert.Empty(t, s.Bus().Participants())
	assert.Equal(t, swarm.StateStopped, s.Status().State)
}

func TestSwarm_GeneratorOverride(t *testing.T) {
	s := startSwarm(t, func(o *Options) {
		o.Generators = map[string]worker.Generator{
			worker.RolePlanner: worker.GeneratorFunc(func(context.Context, core.TaskAssign) (core.TaskResult, error) {
				return core.TaskResult{Subtasks: []string{"the only step"}}, nil
			}),
		}
	})

	out := ask(t, s, "build X")
	assert.Contains(t, out.Text, "the only step")
	assert.NotContains(t, out.Text, "Write tests")
}

func TestSwarm_MockProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = config.ProviderMock
	cfg.Coders = []string{"coder-1", "coder-2"}
	s := startSwarm(t, func(o *Options) { o.Config = cfg })

	out := ask(t, s, "build X")
	assert.False(t, out.Failed)
	assert.Contains(t, out.Text, "Mock response to:")
	assert.Len(t, s.Participants(), 5)
}

func TestSwarm_RunWithBatchFrontend(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	batch := frontend.NewBatch(s.Config().User, s.Bus(), []string{"build X", "build Y"})
	require.NoError(t, s.AddParticipant(batch))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("swarm did not stop after the batch")
	}
	require.Len(t, batch.Results(), 2)
	assert.Empty(t, s.Abandoned())
	assert.EqualValues(t, 2, s.Controller().Stats().Completed)
}

func TestSwarm_Lifecycle(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "too early")
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, swarm.StateIdle, s.Status().State)
	assert.Nil(t, s.Done())
	require.NoError(t, s.Stop(context.Background()), "stop before start is a no-op")

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), swarm.ErrAlreadyStarted)
	assert.ErrorIs(t, s.AddParticipant(frontend.NewBatch("late", s.Bus(), nil)), swarm.ErrAlreadyStarted)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	<-s.Done()

	_, err = s.Ask(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSwarm_StartRetryAfterFailure(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Bus().Register("reviewer")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Start(context.Background()), core.ErrDuplicateParticipant)
	assert.Equal(t, swarm.StateIdle, s.Status().State)
	assert.Nil(t, s.Done())

	require.NoError(t, s.Bus().Deregister("reviewer"))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	out := ask(t, s, "build X")
	assert.False(t, out.Failed)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Planner = cfg.Controller
	_, err := New(func(o *Options) { o.Config = cfg })
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: config.ProviderStub})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderMock, Name: "canned"})
	require.NoError(t, err)
	assert.Equal(t, "canned", m.Info().Name)

	for _, provider := range []string{config.ProviderAnthropic, config.ProviderOpenAI} {
		m, err = NewModel(config.ModelConfig{Provider: provider, Name: "some-model", MaxTokens: 64})
		require.NoError(t, err, provider)
		assert.Equal(t, "some-model", m.Info().Name, provider)
	}

	_, err = NewModel(config.ModelConfig{Provider: "llama"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
