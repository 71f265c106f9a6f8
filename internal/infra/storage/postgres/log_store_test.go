package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
)

const (
	jobsAddr = "0x0000000000000000000000000000000000000001"
	alice    = "0x00000000000000000000000000000000000000a1"
)

func jobAddedRecord(t *testing.T, block, index uint64, id int64) Record {
	t.Helper()
	topics, data, err := ethabi.EncodeLog(contracts.EventJobAdded, map[string]any{
		"author":      alice,
		"description": "paint",
		"price":       big.NewInt(10),
		"id":          big.NewInt(id),
		"isFinished":  false,
	})
	require.NoError(t, err)
	return NewRecord(jobsAddr, topics, data, block, index, "0xtx")
}

func TestRecord_Topics(t *testing.T) {
	topics := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	r := NewRecord("0xABC", topics, nil, 3, 4, "0xh")
	assert.Equal(t, "0xabc", r.Contract)
	assert.Equal(t, topics[1].Hex(), r.Topic1.String)
	assert.Equal(t, topics, r.Topics())
	assert.False(t, r.Topic2.Valid)
	assert.NotNil(t, r.Data)
	assert.Equal(t, int64(3), r.BlockNumber)
}

func TestLogStore_ToRawLog(t *testing.T) {
	s := &LogStore{log: NewLogStore(nil).log}
	ev := contracts.EventJobAdded

	raw := s.toRawLog(ev, jobAddedRecord(t, 7, 2, 4))
	assert.Equal(t, uint64(7), raw.BlockNumber)
	assert.Equal(t, uint64(2), raw.LogIndex)
	assert.Equal(t, alice, raw.Args["author"])
	assert.Equal(t, "paint", raw.Args["description"])
	assert.Equal(t, int64(4), raw.Args["id"].(*big.Int).Int64())

	// Truncated data keeps the indexed author and drops the rest.
	rec := jobAddedRecord(t, 8, 0, 5)
	rec.Data = rec.Data[:10]
	raw = s.toRawLog(ev, rec)
	assert.Equal(t, alice, raw.Args["author"])
	_, ok := raw.Args["id"]
	assert.False(t, ok)
}

// TestLogStore_Live runs against a real database.
// Set DAPPWATCH_TEST_PG_URL to enable it.
func TestLogStore_Live(t *testing.T) {
	url := os.Getenv("DAPPWATCH_TEST_PG_URL")
	if url == "" {
		t.Skip("Skipping live test. Set DAPPWATCH_TEST_PG_URL to run.")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db))

	_, err = db.ExecContext(ctx, `DELETE FROM event_logs WHERE contract = $1`, jobsAddr)
	require.NoError(t, err)

	store := NewLogStore(db)
	require.NoError(t, store.Append(ctx, []Record{
		jobAddedRecord(t, 12, 0, 2),
		jobAddedRecord(t, 10, 1, 1),
		jobAddedRecord(t, 10, 1, 1),
	}))

	logs, err := store.Logs(ctx, chain.LogQuery{
		Contract: domain.NormalizeAddress(jobsAddr),
		Event:    contracts.EventJobAdded,
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(10), logs[0].BlockNumber)
	assert.Equal(t, uint64(12), logs[1].BlockNumber)

	to := uint64(11)
	logs, err = store.Logs(ctx, chain.LogQuery{
		Contract: domain.NormalizeAddress(jobsAddr),
		Event:    contracts.EventJobAdded,
		ToBlock:  &to,
	})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	head, err := store.LatestBlock(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, head, uint64(12))
}
