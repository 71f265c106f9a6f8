package control

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/config"
	"github.com/vietddude/dappwatch/internal/infra/chain/evm"
	"github.com/vietddude/dappwatch/internal/infra/storage/memory"
)

func memoryConfig() *config.AppConfig {
	return &config.AppConfig{
		Server:  config.ServerConfig{Port: 0},
		Chain:   config.ChainConfig{Type: config.ChainMemory},
		Logs:    config.LogsConfig{Source: config.LogSourceChain},
		Caller:  config.DevCaller,
		Contracts: config.ContractsConfig{
			Jobs:    config.DevJobsAddress,
			Bank:    config.DevBankAddress,
			Storage: config.DevStorageAddress,
		},
		RefreshInterval: 20 * time.Millisecond,
	}
}

func TestApp_Lifecycle(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig())
	require.NoError(t, err)
	_, ok := app.Backend().(*memory.Chain)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, app.Start(ctx))
	assert.Error(t, app.Start(ctx), "second start is rejected")

	// Periodic refreshes keep committing new generations.
	assert.Eventually(t, func() bool {
		return app.Session().Snapshot().Generation >= 3
	}, 2*time.Second, 10*time.Millisecond)

	_, err = app.Session().AddJob(ctx, "water the plants", big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, app.Session().Jobs(), 1)

	rec := httptest.NewRecorder()
	app.HealthServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.Stop(ctx))
	gen := app.Session().Snapshot().Generation
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, gen, app.Session().Snapshot().Generation, "no refresh after stop")
}

func TestApp_StopWithoutStart(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig())
	require.NoError(t, err)
	assert.NoError(t, app.Stop(context.Background()))
}

func TestApp_EVMBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Chain = config.ChainConfig{
		Type:      config.ChainEVM,
		Providers: []config.ProviderConfig{{Name: "local", URL: "http://127.0.0.1:1"}},
		Timeout:   time.Second,
	}

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := app.Backend().(*evm.EVMAdapter)
	assert.True(t, ok)
	assert.NotEmpty(t, app.Session().ID())
	assert.NoError(t, app.Stop(context.Background()))
}

func TestApp_UnknownChainType(t *testing.T) {
	cfg := memoryConfig()
	cfg.Chain.Type = "solana"
	_, err := NewApp(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
