package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/messaging"
)

func TestHandlePrefersEventRoute(t *testing.T) {
	var got []string
	record := func(name string) messaging.Handler {
		return func(context.Context, messaging.Message) error {
			got = append(got, name)
			return nil
		}
	}
	engine := NewEngine(Params{
		Client: messaging.NewNoop("t"),
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{Topic: "t", Handler: record("any")},
			{Topic: "t", Event: "saved", Handler: record("saved")},
			{Topic: "t", Event: "saved", Handler: record("duplicate")},
			{Topic: "", Handler: record("ignored")},
		},
	})

	ctx := context.Background()
	require.NoError(t, engine.Handle(ctx, messaging.Message{Topic: "t", Headers: map[string]string{messaging.EventHeader: "saved"}}))
	require.NoError(t, engine.Handle(ctx, messaging.Message{Topic: "t", Headers: map[string]string{messaging.EventHeader: "deleted"}}))
	require.NoError(t, engine.Handle(ctx, messaging.Message{Topic: "t"}))
	require.NoError(t, engine.Handle(ctx, messaging.Message{Topic: "other"}))

	assert.Equal(t, []string{"saved", "any", "any"}, got)
}

func TestStartStopRunsWorkers(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{
		Enabled: true,
		Workers: config.Worker{Enabled: true, Concurrency: 2},
	}}
	engine := NewEngine(Params{
		Client: messaging.NewNoop("t"),
		Logger: zap.NewNop(),
		Config: cfg,
		Registrations: []HandlerRegistration{
			{Topic: "t", Handler: func(context.Context, messaging.Message) error { return nil }},
		},
	})

	require.NoError(t, engine.start(context.Background()))
	require.NotNil(t, engine.cancel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, engine.stop(ctx))
}

func TestDisabledEngineDoesNothing(t *testing.T) {
	engine := NewEngine(Params{Client: messaging.NewNoop("t"), Logger: zap.NewNop()})
	require.NoError(t, engine.start(context.Background()))
	assert.Nil(t, engine.cancel)
	assert.NoError(t, engine.stop(context.Background()))
}
