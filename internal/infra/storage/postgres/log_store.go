package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/dappwatch/internal/indexing/metrics"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
)

// LogStore serves historical logs from the event_logs table an indexer fills.
type LogStore struct {
	db  *DB
	log *logger.Logger
}

var (
	_ chain.LogSource  = (*LogStore)(nil)
	_ chain.HeadReader = (*LogStore)(nil)
)

// NewLogStore creates a log store over db.
func NewLogStore(db *DB) *LogStore {
	return &LogStore{db: db, log: logger.Default().With("component", "logstore")}
}

// Record is one raw log row.
type Record struct {
	Contract    string         `db:"contract"`
	Topic0      string         `db:"topic0"`
	Topic1      sql.NullString `db:"topic1"`
	Topic2      sql.NullString `db:"topic2"`
	Topic3      sql.NullString `db:"topic3"`
	Data        []byte         `db:"data"`
	BlockNumber int64          `db:"block_number"`
	LogIndex    int64          `db:"log_index"`
	TxHash      string         `db:"tx_hash"`
}

// Topics returns the non-null topics in order.
func (r Record) Topics() []common.Hash {
	topics := []common.Hash{common.HexToHash(r.Topic0)}
	for _, t := range []sql.NullString{r.Topic1, r.Topic2, r.Topic3} {
		if !t.Valid {
			break
		}
		topics = append(topics, common.HexToHash(t.String))
	}
	return topics
}

// NewRecord builds a row from encoded topics and data.
func NewRecord(contract string, topics []common.Hash, data []byte, blockNumber, logIndex uint64, txHash string) Record {
	r := Record{
		Contract:    strings.ToLower(contract),
		Data:        data,
		BlockNumber: int64(blockNumber),
		LogIndex:    int64(logIndex),
		TxHash:      txHash,
	}
	slots := []*sql.NullString{&r.Topic1, &r.Topic2, &r.Topic3}
	for i, t := range topics {
		if i == 0 {
			r.Topic0 = t.Hex()
			continue
		}
		if i-1 < len(slots) {
			*slots[i-1] = sql.NullString{String: t.Hex(), Valid: true}
		}
	}
	if r.Data == nil {
		r.Data = []byte{}
	}
	return r
}

const selectLogs = `
	SELECT contract, topic0, topic1, topic2, topic3, data, block_number, log_index, tx_hash
	FROM event_logs
	WHERE contract = $1
	  AND topic0 = $2
	  AND block_number >= $3
	  AND ($4::BIGINT IS NULL OR block_number <= $4)
	  AND NOT removed
	ORDER BY block_number, log_index
`

// Logs returns decoded logs for one event in ascending order.
func (s *LogStore) Logs(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
	ev := q.Event

	var to sql.NullInt64
	if q.ToBlock != nil {
		to = sql.NullInt64{Int64: int64(*q.ToBlock), Valid: true}
	}

	start := time.Now()
	var rows []Record
	err := s.db.SelectContext(ctx, &rows, selectLogs, q.Contract.String(), ev.ID.Hex(), int64(q.FromBlock), to)
	metrics.DBQueryDuration.WithLabelValues(ev.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query %s logs: %w", ev.Name, err)
	}

	out := make([]chain.RawLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toRawLog(ev, r))
	}
	return out, nil
}

func (s *LogStore) toRawLog(ev abi.Event, r Record) chain.RawLog {
	args, err := ethabi.DecodeLog(ev, r.Topics(), r.Data)
	if err != nil {
		s.log.Debug("partial log decode", "event", ev.Name, "tx", r.TxHash, "error", err)
	}
	return chain.RawLog{
		Args:        args,
		BlockNumber: uint64(r.BlockNumber),
		LogIndex:    uint64(r.LogIndex),
		TxHash:      r.TxHash,
	}
}

// LatestBlock returns the highest indexed block, 0 when the table is empty.
func (s *LogStore) LatestBlock(ctx context.Context) (uint64, error) {
	var head int64
	if err := s.db.GetContext(ctx, &head, `SELECT COALESCE(MAX(block_number), 0) FROM event_logs`); err != nil {
		return 0, fmt.Errorf("query latest block: %w", err)
	}
	return uint64(head), nil
}

const insertLog = `
	INSERT INTO event_logs (contract, topic0, topic1, topic2, topic3, data, block_number, log_index, tx_hash)
	VALUES (:contract, :topic0, :topic1, :topic2, :topic3, :data, :block_number, :log_index, :tx_hash)
	ON CONFLICT (block_number, log_index) DO NOTHING
`

// Append inserts records in one transaction. Existing positions are kept.
// It is the ingestion side of the store; dappwatch itself only reads.
func (s *LogStore) Append(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertLog)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return fmt.Errorf("failed to insert log %d/%d: %w", r.BlockNumber, r.LogIndex, err)
		}
	}
	return tx.Commit()
}
