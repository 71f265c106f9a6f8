package normalize

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/chain"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b0"
)

func rec(block, index uint64, args map[string]any) chain.RawLog {
	return chain.RawLog{Args: args, BlockNumber: block, LogIndex: index, TxHash: "0xt"}
}

func TestNormalize_SortsAcrossBatches(t *testing.T) {
	n := New()
	res := n.Normalize(
		Batch{Kind: domain.EventKindJobTaken, Records: []chain.RawLog{
			rec(12, 0, map[string]any{"worker": bob, "id": big.NewInt(1)}),
		}},
		Batch{Kind: domain.EventKindJobAdded, Records: []chain.RawLog{
			rec(10, 1, map[string]any{"author": alice, "description": "desc", "price": big.NewInt(5), "id": big.NewInt(1)}),
		}},
	)

	require.Empty(t, res.Anomalies)
	require.Len(t, res.Events, 2)
	assert.Equal(t, domain.EventKindJobAdded, res.Events[0].Kind)
	assert.Equal(t, domain.EventKindJobTaken, res.Events[1].Kind)
	assert.Equal(t, domain.Address(bob), res.Events[1].Actor)

	added := res.Events[0]
	assert.Equal(t, "1", added.EntityID)
	assert.True(t, added.Payload.Description.Present)
	assert.Equal(t, "desc", added.Payload.Description.Value)
	assert.Equal(t, int64(5), added.Payload.Amount.Value.Int64())
}

func TestNormalize_SamePositionTieBreak(t *testing.T) {
	n := New()
	res := n.Normalize(
		Batch{Kind: domain.EventKindWithdrawn, Records: []chain.RawLog{rec(3, 0, map[string]any{"account": alice, "amount": 1})}},
		Batch{Kind: domain.EventKindDeposited, Records: []chain.RawLog{rec(3, 0, map[string]any{"account": alice, "amount": 1})}},
	)
	require.Len(t, res.Events, 2)
	assert.Equal(t, domain.EventKindDeposited, res.Events[0].Kind)
	assert.Equal(t, domain.EventKindWithdrawn, res.Events[1].Kind)
}

func TestNormalize_CollapsesDuplicates(t *testing.T) {
	r := rec(5, 2, map[string]any{"account": alice, "amount": "100"})
	res := New().Normalize(Batch{Kind: domain.EventKindDeposited, Records: []chain.RawLog{r, r, r}})
	assert.Len(t, res.Events, 1)
	assert.Empty(t, res.Anomalies)
}

func TestNormalize_DefaultsMissingFields(t *testing.T) {
	res := New().Normalize(Batch{Kind: domain.EventKindJobAdded, Records: []chain.RawLog{
		rec(1, 0, map[string]any{"id": "0x2"}),
	}})

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, "2", ev.EntityID)
	assert.Equal(t, domain.UnknownAddress, ev.Actor)
	assert.False(t, ev.Payload.Description.Present)
	assert.Equal(t, "", ev.Payload.Description.Value)
	assert.False(t, ev.Payload.Amount.Present)
	assert.Equal(t, 0, ev.Payload.Amount.Value.Sign())

	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, domain.AnomalyMalformedPayload, res.Anomalies[0].Kind)
	assert.Contains(t, res.Anomalies[0].Reason, "author")
	assert.Contains(t, res.Anomalies[0].Reason, "price")
}

func TestNormalize_DropsUnkeyedRecords(t *testing.T) {
	res := New().Normalize(Batch{Kind: domain.EventKindJobTaken, Records: []chain.RawLog{
		rec(1, 0, map[string]any{"worker": bob}),
		rec(2, 0, map[string]any{"worker": bob, "id": "not-a-number"}),
		rec(3, 0, map[string]any{"worker": bob, "id": 4}),
	}})

	require.Len(t, res.Events, 1)
	assert.Equal(t, "4", res.Events[0].EntityID)
	assert.Len(t, res.Anomalies, 2)
}

func TestNormalize_ToleratesArgumentShapes(t *testing.T) {
	shapes := []any{
		big.NewInt(42),
		uint64(42),
		42,
		float64(42),
		json.Number("42"),
		"42",
		"0x2a",
	}
	for _, v := range shapes {
		res := New().Normalize(Batch{Kind: domain.EventKindNumberChanged, Records: []chain.RawLog{
			rec(1, 0, map[string]any{"by": domain.Address(alice), "number": v}),
		}})
		require.Len(t, res.Events, 1, "%T", v)
		assert.Empty(t, res.Anomalies, "%T", v)
		assert.Equal(t, int64(42), res.Events[0].Payload.Amount.Value.Int64(), "%T", v)
	}
}

func TestNormalize_RejectsBadAmounts(t *testing.T) {
	for _, v := range []any{-1, 1.5, "abc", true} {
		res := New().Normalize(Batch{Kind: domain.EventKindDeposited, Records: []chain.RawLog{
			rec(1, 0, map[string]any{"account": alice, "amount": v}),
		}})
		require.Len(t, res.Events, 1)
		assert.False(t, res.Events[0].Payload.Amount.Present, "%v", v)
		assert.Len(t, res.Anomalies, 1)
	}
}

func TestNormalize_AddressCase(t *testing.T) {
	res := New().Normalize(Batch{Kind: domain.EventKindDeposited, Records: []chain.RawLog{
		rec(1, 0, map[string]any{"account": "0x00000000000000000000000000000000000000AB", "amount": 1}),
	}})
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.Address("0x00000000000000000000000000000000000000ab"), res.Events[0].Actor)
}

func TestNormalize_EmptyBatches(t *testing.T) {
	res := New().Normalize(Batch{Kind: domain.EventKindJobAdded}, Batch{Kind: domain.EventKindJobTaken})
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Anomalies)
}
