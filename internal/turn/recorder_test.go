package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderTeesRawAndVisible(t *testing.T) {
	r := NewRecorder()
	frags := []string{"Talebinizi ekibe iletiyorum. `", "``json\n{\"handoff\":", "\"customer_request\"}\n`", "``"}

	var shown string
	for _, f := range frags {
		shown += r.Push(f)
	}
	tail, tr := r.Finish()
	shown += tail

	assert.Equal(t, "Talebinizi ekibe iletiyorum. ", shown)
	assert.Equal(t, shown, tr.Visible)
	assert.Equal(t, "Talebinizi ekibe iletiyorum. ```json\n{\"handoff\":\"customer_request\"}\n```", tr.Raw)
	assert.Equal(t, 4, tr.Fragments)
	assert.False(t, tr.Tripped)
}

func TestRecorderFinishIsIdempotent(t *testing.T) {
	r := NewRecorder()
	r.Push("merhaba ``")

	tail, first := r.Finish()
	require.Equal(t, "``", tail)

	r.Push(" geç gelen")
	tail, second := r.Finish()
	assert.Empty(t, tail)
	assert.Equal(t, first, second)
	assert.Equal(t, "merhaba ``", second.Raw)
}

func TestRecorderTrippedByBareMarker(t *testing.T) {
	r := NewRecorder()
	shown := r.Push(`Özet {"handoff": "customer_request"}`)
	_, tr := r.Finish()

	assert.Equal(t, "Özet {", shown)
	assert.True(t, tr.Tripped)
	assert.Contains(t, tr.Raw, `"handoff"`)
}
