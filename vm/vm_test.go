package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(t *testing.T) *Account {
	t.Helper()
	var addr [15]byte
	addr[0] = 0xaa
	return NewAccount(addr)
}

func TestExecutionStackOps(t *testing.T) {
	exec := NewExecution(testAccount(t), NewAdviceProvider())

	err := exec.Run(Program{
		{Op: OpPush, Imm: 7},
		{Op: OpDup},
		{Op: OpDrop},
	})
	require.NoError(t, err)
	assert.Equal(t, []Felt{7}, exec.Output())
}

func TestExecutionAdvicePushWord(t *testing.T) {
	advice := NewAdviceProvider()
	exec := NewExecution(testAccount(t), advice)

	w, err := PackString("alice.miden")
	require.NoError(t, err)
	require.NoError(t, advice.Supply(exec.ID, []Felt{w[0], w[1], w[2], w[3]}))

	require.NoError(t, exec.Run(Program{{Op: OpAdvPushW}}))
	assert.Equal(t, []Felt{w[0], w[1], w[2], w[3]}, exec.Output())
}

func TestExecutionAdviceMissing(t *testing.T) {
	exec := NewExecution(testAccount(t), NewAdviceProvider())

	err := exec.Run(Program{{Op: OpAdvPushW}})
	require.ErrorIs(t, err, ErrAdviceMissing)
}

func TestExecutionMapSetGet(t *testing.T) {
	advice := NewAdviceProvider()
	exec := NewExecution(testAccount(t), advice)

	key, err := PackString("bob.miden")
	require.NoError(t, err)
	value, err := PackBytes([]byte{1, 2, 3})
	require.NoError(t, err)

	// Advice holds value first, key second, so the key sits on top for
	// map_set. The get then re-reads the same key.
	require.NoError(t, advice.Supply(exec.ID, []Felt{
		value[0], value[1], value[2], value[3],
		key[0], key[1], key[2], key[3],
		key[0], key[1], key[2], key[3],
	}))

	err = exec.Run(Program{
		{Op: OpAdvPushW},
		{Op: OpAdvPushW},
		{Op: OpMapSet, Imm: NewFelt(uint64(RegistrySlot))},
		{Op: OpAdvPushW},
		{Op: OpMapGet, Imm: NewFelt(uint64(RegistrySlot))},
	})
	require.NoError(t, err)

	out := exec.Output()
	require.Len(t, out, 5)
	assert.Equal(t, Felt(1), out[4], "presence flag")
	assert.Equal(t, []Felt{value[0], value[1], value[2], value[3]}, out[:4])
}

func TestExecutionMapGetAbsent(t *testing.T) {
	advice := NewAdviceProvider()
	exec := NewExecution(testAccount(t), advice)

	key, err := PackString("nobody.miden")
	require.NoError(t, err)
	require.NoError(t, advice.Supply(exec.ID, []Felt{key[0], key[1], key[2], key[3]}))

	err = exec.Run(Program{
		{Op: OpAdvPushW},
		{Op: OpMapGet, Imm: NewFelt(uint64(RegistrySlot))},
	})
	require.NoError(t, err)

	out := exec.Output()
	require.Len(t, out, 5)
	assert.Equal(t, Felt(0), out[4], "absent key must leave an explicit zero flag")
}

func TestExecutionNonceIncrementOnce(t *testing.T) {
	account := testAccount(t)
	exec := NewExecution(account, NewAdviceProvider())

	require.NoError(t, exec.Run(Program{{Op: OpIncrNonce}}))
	assert.True(t, exec.NonceIncreased())
	assert.Equal(t, uint64(1), exec.Account.Nonce())

	err := exec.Run(Program{{Op: OpIncrNonce}})
	require.ErrorIs(t, err, ErrNonceAlreadyIncremented)

	// The committed account is untouched until the caller applies the clone.
	assert.Equal(t, uint64(0), account.Nonce())
}

func TestExecutionAssert(t *testing.T) {
	exec := NewExecution(testAccount(t), NewAdviceProvider())
	require.NoError(t, exec.Run(Program{{Op: OpPush, Imm: 1}, {Op: OpAssert}}))

	exec = NewExecution(testAccount(t), NewAdviceProvider())
	require.Error(t, exec.Run(Program{{Op: OpPush, Imm: 0}, {Op: OpAssert}}))
}

func TestExecutionEqW(t *testing.T) {
	w, err := PackString("same.miden")
	require.NoError(t, err)

	exec := NewExecution(testAccount(t), NewAdviceProvider())
	prog := Program{
		{Op: OpPush, Imm: w[0]}, {Op: OpPush, Imm: w[1]}, {Op: OpPush, Imm: w[2]}, {Op: OpPush, Imm: w[3]},
		{Op: OpPush, Imm: w[0]}, {Op: OpPush, Imm: w[1]}, {Op: OpPush, Imm: w[2]}, {Op: OpPush, Imm: w[3]},
		{Op: OpEqW},
	}
	require.NoError(t, exec.Run(prog))
	out := exec.Output()
	require.Len(t, out, 1)
	assert.Equal(t, Felt(1), out[0])
}

func TestExecutionUnderflow(t *testing.T) {
	exec := NewExecution(testAccount(t), NewAdviceProvider())
	err := exec.Run(Program{{Op: OpDrop}})
	require.ErrorIs(t, err, ErrStackUnderflow)
}
