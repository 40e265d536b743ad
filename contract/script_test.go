package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRegister(t *testing.T) {
	script, err := Compose(ScriptRegister)
	require.NoError(t, err)
	assert.Equal(t, []Procedure{ProcRegister, ProcIncrementNonce}, script.Calls())
	assert.True(t, script.Mutating())
}

// A past revision composed the lookup script with the deploy procedure in
// place of lookup, which made every resolution come back empty. Pin the call
// sequence.
func TestComposeLookupInvokesLookup(t *testing.T) {
	script, err := Compose(ScriptLookup)
	require.NoError(t, err)

	calls := script.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ProcLookup, calls[0])
	assert.NotContains(t, calls, ProcDeploy)
	assert.False(t, script.Mutating())
}

func TestComposeEndsWithSingleNonceIncrement(t *testing.T) {
	for _, kind := range []ScriptKind{ScriptRegister, ScriptLookup, ScriptDeploy} {
		script, err := Compose(kind)
		require.NoError(t, err)

		calls := script.Calls()
		require.NotEmpty(t, calls, kind.String())
		assert.Equal(t, ProcIncrementNonce, calls[len(calls)-1], kind.String())

		count := 0
		for _, p := range calls {
			if p == ProcIncrementNonce {
				count++
			}
		}
		assert.Equal(t, 1, count, "%s must increment the nonce exactly once", kind)
	}
}

func TestComposeUnknownKind(t *testing.T) {
	_, err := Compose(ScriptKind(99))
	require.Error(t, err)
}

func TestScriptCallsIsACopy(t *testing.T) {
	script, err := Compose(ScriptRegister)
	require.NoError(t, err)

	calls := script.Calls()
	calls[0] = ProcDeploy
	assert.Equal(t, []Procedure{ProcRegister, ProcIncrementNonce}, script.Calls())
}

func TestScriptHashDistinguishesKinds(t *testing.T) {
	reg, err := Compose(ScriptRegister)
	require.NoError(t, err)
	look, err := Compose(ScriptLookup)
	require.NoError(t, err)

	assert.NotEqual(t, reg.Hash(), look.Hash())
	assert.Equal(t, reg.Hash(), reg.Hash())
}
