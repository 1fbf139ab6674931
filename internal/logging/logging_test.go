package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		l, err := New(env, "warn")
		require.NoError(t, err, env)
		assert.False(t, l.Core().Enabled(zap.InfoLevel), env)
		assert.True(t, l.Core().Enabled(zap.WarnLevel), env)
	}

	_, err := New("development", "loud")
	assert.Error(t, err)
}

func TestConversationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Conversation(zap.New(core), "thread_1", "demo").Info("turn")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "thread_1", fields["conversation_id"])
	assert.Equal(t, "demo", fields["brand"])
}
