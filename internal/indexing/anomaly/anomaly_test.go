package anomaly

import (
	"bytes"
	"context"
	"errors"
	"testing"

	logger "log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/domain"
)

func sample(id string) domain.Anomaly {
	return domain.Anomaly{
		Kind:   domain.AnomalyUnknownEntity,
		Event:  domain.EventKey{Kind: domain.EventKindJobTaken, EntityID: id, BlockNumber: 3, LogIndex: 1},
		Reason: "job not found",
	}
}

func TestRecorder_Bounded(t *testing.T) {
	r := NewRecorder(2)
	require.NoError(t, r.Report(context.Background(), []domain.Anomaly{sample("1"), sample("2")}))
	require.NoError(t, r.Report(context.Background(), []domain.Anomaly{sample("3")}))

	got := r.Recent()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Event.EntityID)
	assert.Equal(t, "3", got[1].Event.EntityID)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(logger.New(logger.NewTextHandler(&buf, nil)))

	require.NoError(t, r.Report(context.Background(), []domain.Anomaly{sample("9")}))
	out := buf.String()
	assert.Contains(t, out, "event anomaly")
	assert.Contains(t, out, "kind=unknown_entity")
	assert.Contains(t, out, "entity=9")
}

type failing struct{ err error }

func (f failing) Report(context.Context, []domain.Anomaly) error { return f.err }

func TestMulti(t *testing.T) {
	rec := NewRecorder(10)
	boom := errors.New("boom")
	m := Multi{failing{boom}, rec, Nop{}}

	err := m.Report(context.Background(), []domain.Anomaly{sample("1")})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Recent(), 1)
}
