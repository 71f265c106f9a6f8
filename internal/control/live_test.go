package control

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/config"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// TestApp_LiveNode runs a bank round trip against a local development node
// (hardhat or anvil) with the contracts deployed at the dev addresses.
func TestApp_LiveNode(t *testing.T) {
	url := os.Getenv("DAPPWATCH_E2E_RPC")
	if url == "" {
		t.Skip("Skipping live node test. Set DAPPWATCH_E2E_RPC=http://127.0.0.1:8545 to run.")
	}

	cfg := memoryConfig()
	cfg.Chain = config.ChainConfig{
		Type:                config.ChainEVM,
		Providers:           []config.ProviderConfig{{Name: "local", URL: url}},
		Timeout:             10 * time.Second,
		ReceiptPollInterval: 200 * time.Millisecond,
		Retry:               routing.DefaultRetryConfig,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer func() {
		_ = app.Stop(context.Background())
	}()

	s := app.Session()
	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	before, ok := s.Balance()
	require.True(t, ok)
	entries := len(s.Ledger())

	_, err = s.Deposit(ctx, ether(1))
	require.NoError(t, err)
	_, err = s.Withdraw(ctx, ether(1))
	require.NoError(t, err)

	after, _ := s.Balance()
	assert.Equal(t, 0, before.Cmp(after))
	assert.Len(t, s.Ledger(), entries+2)
	assert.False(t, s.Ledger()[0].IsDeposit())
}
