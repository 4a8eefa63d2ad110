package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEvent(t *testing.T) {
	event, err := buildEvent("drawdown_breach", `{"severity":"high","drawdown":0.18}`, map[string]string{
		"symbol":   "BTC/USDT",
		"halted":   "true",
		"exposure": "0.42",
	})
	require.NoError(t, err)

	assert.Equal(t, "drawdown_breach", event["type"])
	assert.Equal(t, "high", event["severity"])
	assert.Equal(t, 0.18, event["drawdown"])
	assert.Equal(t, "BTC/USDT", event["symbol"])
	assert.Equal(t, true, event["halted"])
	assert.Equal(t, 0.42, event["exposure"])
}

func TestBuildEventTypeFlagWins(t *testing.T) {
	event, err := buildEvent("volatility_spike", `{"type":"other"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "volatility_spike", event.Type())
}

func TestBuildEventErrors(t *testing.T) {
	_, err := buildEvent("", "", nil)
	assert.Error(t, err)

	_, err = buildEvent("x", "{not json", nil)
	assert.Error(t, err)
}
