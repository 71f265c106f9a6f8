package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/domain"
)

var testAddrs = Addresses{
	Jobs:    "0x1000000000000000000000000000000000000001",
	Bank:    "0x2000000000000000000000000000000000000002",
	Storage: "0x3000000000000000000000000000000000000003",
}

func TestCatalogue(t *testing.T) {
	for _, ev := range []abi.Event{EventJobAdded, EventJobTaken, EventJobFinished, EventDeposited, EventWithdrawn, EventNumberSet} {
		require.NotEmpty(t, ev.Name)
		assert.NotEqual(t, common.Hash{}, ev.ID, ev.Name)
	}
	for _, m := range []abi.Method{FnAddJob, FnTakeJob, FnFinishJob, FnDeposit, FnWithdraw, FnBalanceOf, FnSetNumber, FnGetNumber} {
		require.NotEmpty(t, m.Name)
		assert.Len(t, m.ID, 4, m.Name)
	}

	assert.Equal(t, "jobTaken(address,uint256)", EventJobTaken.Sig)
	assert.Equal(t, "setIsFinishedAndPay(uint256)", FnFinishJob.Sig)
	assert.True(t, FnAddJob.IsPayable())
	assert.True(t, FnDeposit.IsPayable())
	assert.False(t, FnWithdraw.IsPayable())
	assert.True(t, FnBalanceOf.IsConstant())
	assert.True(t, EventJobFinished.Inputs[1].Indexed)
}

func TestSources_SkipsMissingContracts(t *testing.T) {
	all := Sources(testAddrs, Window{})
	assert.Len(t, all, 6)

	jobsOnly := Sources(Addresses{Jobs: testAddrs.Jobs}, Window{From: 5})
	require.Len(t, jobsOnly, 3)
	for _, s := range jobsOnly {
		assert.Equal(t, testAddrs.Jobs, s.Query.Contract)
		assert.Equal(t, uint64(5), s.Query.FromBlock)
		assert.Nil(t, s.Query.ToBlock)
	}
	assert.Equal(t, domain.EventKindJobAdded, jobsOnly[0].Kind)
}

func TestWindow_Pin(t *testing.T) {
	w := Window{From: 0}.Pin(42)
	require.NotNil(t, w.To)
	assert.Equal(t, uint64(42), *w.To)

	to := uint64(1000)
	fixed := Window{To: &to}.Pin(42)
	assert.Equal(t, uint64(1000), *fixed.To)
}

func TestWriteBuilders(t *testing.T) {
	req := AddJob(testAddrs, "fix the roof", big.NewInt(10))
	assert.Equal(t, testAddrs.Jobs, req.Contract)
	assert.Equal(t, []any{"fix the roof"}, req.Args)
	assert.Equal(t, int64(10), req.Value.Int64())

	assert.Equal(t, FnFinishJob.Name, FinishJob(testAddrs, 3).Method.Name)
	assert.Nil(t, Deposit(testAddrs, big.NewInt(1)).Args)
	assert.Equal(t, testAddrs.Storage, SetNumber(testAddrs, big.NewInt(7)).Contract)
}
