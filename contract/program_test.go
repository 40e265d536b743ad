package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/vm"
)

func registryAccount(t *testing.T) *vm.Account {
	t.Helper()
	var addr interfaces.ContractAddress
	addr[0] = 0x42
	return vm.NewAccount(addr)
}

func mustName(t *testing.T, raw string) interfaces.Name {
	t.Helper()
	name, err := interfaces.NewName(raw)
	require.NoError(t, err)
	return name
}

func mustAccountID(t *testing.T, raw string) interfaces.AccountID {
	t.Helper()
	id, err := interfaces.NewAccountID(raw)
	require.NoError(t, err)
	return id
}

func runScript(t *testing.T, account *vm.Account, kind ScriptKind, advice []vm.Felt) (*vm.Execution, error) {
	t.Helper()
	provider := vm.NewAdviceProvider()
	exec := vm.NewExecution(account, provider)
	defer provider.Discard(exec.ID)

	if len(advice) > 0 {
		require.NoError(t, provider.Supply(exec.ID, advice))
	}
	script, err := Compose(kind)
	require.NoError(t, err)
	return exec, script.Run(exec)
}

func TestRegisterThenLookup(t *testing.T) {
	account := registryAccount(t)
	name := mustName(t, "alice.miden")
	target := mustAccountID(t, "0xdeadbeef01")

	nameWord, err := NameWord(name)
	require.NoError(t, err)
	accountWord, err := AccountWord(target)
	require.NoError(t, err)

	exec, err := runScript(t, account, ScriptRegister, RegisterAdvice(nameWord, accountWord))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), exec.Account.Nonce())
	account.Apply(exec.Account)

	exec, err = runScript(t, account, ScriptLookup, LookupAdvice(nameWord))
	require.NoError(t, err)

	value, found, err := ParseLookupOutput(exec.Output())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, target, AccountIDFromWord(value))
}

func TestRegisterThenLookupMaxRangeAccountID(t *testing.T) {
	// Every 8-byte chunk at the top of the representable range. An id that
	// passes validation must pack into a word and come back byte-exact.
	account := registryAccount(t)
	nameWord, err := NameWord(mustName(t, "edge.miden"))
	require.NoError(t, err)

	target := mustAccountID(t, "0xffffffff00000000ffffffff00000000ffffffff00000000")
	accountWord, err := AccountWord(target)
	require.NoError(t, err)

	exec, err := runScript(t, account, ScriptRegister, RegisterAdvice(nameWord, accountWord))
	require.NoError(t, err)
	account.Apply(exec.Account)

	exec, err = runScript(t, account, ScriptLookup, LookupAdvice(nameWord))
	require.NoError(t, err)

	value, found, err := ParseLookupOutput(exec.Output())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, target, AccountIDFromWord(value))
}

func TestLookupAbsentName(t *testing.T) {
	nameWord, err := NameWord(mustName(t, "ghost.miden"))
	require.NoError(t, err)

	exec, err := runScript(t, registryAccount(t), ScriptLookup, LookupAdvice(nameWord))
	require.NoError(t, err)

	_, found, err := ParseLookupOutput(exec.Output())
	require.NoError(t, err)
	assert.False(t, found, "an unregistered name must come back with an explicit absent flag")
}

func TestRegisterExistingNameFails(t *testing.T) {
	account := registryAccount(t)
	nameWord, err := NameWord(mustName(t, "taken.miden"))
	require.NoError(t, err)

	first, err := AccountWord(mustAccountID(t, "0x01"))
	require.NoError(t, err)
	second, err := AccountWord(mustAccountID(t, "0x02"))
	require.NoError(t, err)

	exec, err := runScript(t, account, ScriptRegister, RegisterAdvice(nameWord, first))
	require.NoError(t, err)
	account.Apply(exec.Account)

	_, err = runScript(t, account, ScriptRegister, RegisterAdvice(nameWord, second))
	require.ErrorIs(t, err, vm.ErrKeyBound)

	// The losing execution must not have touched the committed account.
	value, found, mErr := account.MapGet(vm.RegistrySlot, nameWord)
	require.NoError(t, mErr)
	require.True(t, found)
	assert.Equal(t, first, value)
	assert.Equal(t, uint64(1), account.Nonce())
}

func TestNameWordRoundTrip(t *testing.T) {
	name := mustName(t, "round.miden")
	w, err := NameWord(name)
	require.NoError(t, err)
	assert.Equal(t, name.String(), NameFromWord(w))
}

func TestParseLookupOutputMalformed(t *testing.T) {
	_, _, err := ParseLookupOutput([]vm.Felt{1, 2})
	require.ErrorIs(t, err, ErrMalformedOutput)

	_, _, err = ParseLookupOutput([]vm.Felt{0, 0, 0, 0, 7})
	require.ErrorIs(t, err, ErrMalformedOutput)
}
