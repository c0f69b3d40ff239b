package issuance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/domain"
)

func TestLifecycle_ZeroValueIsIdle(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, domain.TxIdle, l.State())
}

func TestLifecycle_Transitions(t *testing.T) {
	all := []domain.TxState{domain.TxIdle, domain.TxLoading, domain.TxSuccess, domain.TxError}
	allowed := map[[2]domain.TxState]bool{
		{domain.TxIdle, domain.TxLoading}:    true,
		{domain.TxLoading, domain.TxSuccess}: true,
		{domain.TxLoading, domain.TxError}:   true,
		{domain.TxSuccess, domain.TxIdle}:    true,
		{domain.TxError, domain.TxIdle}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]domain.TxState{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestLifecycle_NeverSkipsLoading(t *testing.T) {
	var l Lifecycle
	require.ErrorIs(t, l.Transition(domain.TxSuccess), domain.ErrInvalidTransition)
	require.ErrorIs(t, l.Transition(domain.TxError), domain.ErrInvalidTransition)
	assert.Equal(t, domain.TxIdle, l.State())

	require.NoError(t, l.Transition(domain.TxLoading))
	require.ErrorIs(t, l.Transition(domain.TxLoading), domain.ErrInvalidTransition)
	require.NoError(t, l.Transition(domain.TxError))
	require.NoError(t, l.Transition(domain.TxIdle))
}

func TestResume(t *testing.T) {
	l := Resume(domain.TxError)
	assert.Equal(t, domain.TxError, l.State())
	require.ErrorIs(t, l.Transition(domain.TxLoading), domain.ErrInvalidTransition)
	require.NoError(t, l.Transition(domain.TxIdle))
	require.NoError(t, l.Transition(domain.TxLoading))
}
