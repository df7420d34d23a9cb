package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()

	_, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("k", "v"))
	require.NoError(t, m.SetAll(map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, m.Delete("b"))

	all, err := m.AllSettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v", "a": "1"}, all)

	// Returned map is a copy.
	all["k"] = "mutated"
	v, _, _ := m.Get("k")
	assert.Equal(t, "v", v)

	_, err = m.LoadSession("grayscale")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state := domain.SessionState{UsedUpMs: 10, Day: domain.Date{Year: 2026, Month: time.October, Day: 19}}
	require.NoError(t, m.SaveSession("grayscale", state))
	got, err := m.LoadSession("grayscale")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestLogOverlay(t *testing.T) {
	o := NewLogOverlay(zap.NewNop())
	assert.False(t, o.IsVisible())

	require.NoError(t, o.Show(0.6))
	assert.True(t, o.IsVisible())
	assert.Equal(t, 0.6, o.Intensity())

	require.NoError(t, o.Show(0.85))
	assert.Equal(t, 0.85, o.Intensity())

	require.NoError(t, o.Hide())
	require.NoError(t, o.Hide())
	assert.False(t, o.IsVisible())

	shows, hides := o.Counts()
	assert.Equal(t, 2, shows)
	assert.Equal(t, 1, hides)

	assert.Error(t, o.Show(1.5))
	assert.False(t, o.IsVisible())
}
