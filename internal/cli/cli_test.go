package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command against the default in-memory chain.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestJobAdd(t *testing.T) {
	out, err := run(t, "job", "add", "--price", "0.5", "paint the fence")
	require.NoError(t, err)
	assert.Contains(t, out, "confirmed in block 1")
	assert.Contains(t, out, "paint the fence")
	assert.Contains(t, out, "0.5000")
}

func TestJobAdd_InvalidPrice(t *testing.T) {
	_, err := run(t, "job", "add", "--price", "lots", "x")
	assert.ErrorContains(t, err, "invalid price")
}

func TestBankWithdraw_Reverts(t *testing.T) {
	_, err := run(t, "bank", "withdraw", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "you cannot withdraw more than you have")
}

func TestBankDeposit(t *testing.T) {
	out, err := run(t, "bank", "deposit", "1.25")
	require.NoError(t, err)
	assert.Contains(t, out, "bank balance: 1.2500 ETH")
	assert.Contains(t, out, "+1.2500")
}

func TestNumberSet(t *testing.T) {
	out, err := run(t, "number", "set", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "number: 42")

	_, err = run(t, "number", "set", "forty-two")
	assert.ErrorContains(t, err, "invalid number")
}

func TestStatus(t *testing.T) {
	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "generation 1")
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "counter: 0")
}
