package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/pmem/internal/conv"
	"github.com/hupe1980/pmem/internal/undolog"
)

type rollbackResult struct {
	rolledBack int      // transactions without a commit or abort record
	restored   int      // pre-images copied back
	pending    []uint64 // ids of the rolled back transactions
	torn       error    // why the scan stopped early, if it did
}

// rollback copies back, newest first, the pre-images of every transaction in
// the undo log that has neither a commit nor an abort record, and flushes the
// restored ranges. The log itself is left untouched.
func (p *Pool) rollback() (rollbackResult, error) {
	var res rollbackResult

	recs, torn, err := p.undo.Scan()
	if err != nil {
		return res, fmt.Errorf("scan undo log: %w", err)
	}
	res.torn = torn

	ended := make(map[uint64]bool)
	var begun []uint64
	for i := range recs {
		switch recs[i].Type {
		case undolog.RecordBegin:
			begun = append(begun, recs[i].TxID)
		case undolog.RecordCommit, undolog.RecordAbort:
			ended[recs[i].TxID] = true
		}
	}
	for _, id := range begun {
		if !ended[id] {
			res.pending = append(res.pending, id)
		}
	}
	res.rolledBack = len(res.pending)

	for i := len(recs) - 1; i >= 0; i-- {
		r := &recs[i]
		if r.Type != undolog.RecordSnapshot || ended[r.TxID] {
			continue
		}
		n := len(r.Data)
		off, err := conv.Uint64ToInt(r.Off)
		if err != nil || off > len(p.data) || n > len(p.data)-off {
			return res, fmt.Errorf("%w: undo record [%d,%d) outside pool of %d bytes",
				ErrBadRange, r.Off, r.Off+uint64(n), len(p.data))
		}
		copy(p.data[off:off+n], r.Data)
		if err := p.m.Flush(off, n); err != nil {
			return res, err
		}
		res.restored++
	}
	return res, nil
}

// recover runs on open. It rolls back an interrupted transaction and
// truncates the log.
func (p *Pool) recover() error {
	if p.undo.Empty() {
		return nil
	}

	start := time.Now()
	res, err := p.rollback()
	if err == nil {
		err = p.undo.Reset()
	}
	p.stats.rolledBack.Add(int64(res.rolledBack))
	p.opts.metrics.RecordRecovery(res.rolledBack, time.Since(start), err)
	p.log.LogRecovery(context.Background(), res.rolledBack, res.restored, res.torn, err)
	if err != nil {
		return fmt.Errorf("pool: recovery: %w", err)
	}
	return nil
}

// markAborted appends a durable abort record for every pending transaction,
// so a log that could not be truncated never restores their pre-images a
// second time. A torn log is refused: records appended after the tear would
// be unreachable by the next scan.
func (p *Pool) markAborted(res rollbackResult) error {
	if res.torn != nil {
		return fmt.Errorf("undo log torn: %w", res.torn)
	}
	for i, id := range res.pending {
		rec := undolog.Record{Type: undolog.RecordAbort, TxID: id}
		var err error
		if i == len(res.pending)-1 {
			err = p.undo.AppendSync(rec)
		} else {
			err = p.undo.Append(rec)
		}
		if err != nil {
			return fmt.Errorf("mark tx %d aborted: %w", id, err)
		}
	}
	return nil
}

// settle brings a non-empty undo log left behind by a failed truncate back
// to a state that is safe to append to. It restores any transaction still
// pending, then truncates the log or, if that fails again, closes every
// pending transaction with an abort record.
func (p *Pool) settle() error {
	if p.undo.Empty() {
		return nil
	}
	res, err := p.rollback()
	if err != nil {
		return err
	}
	rerr := p.undo.Reset()
	if rerr == nil {
		return nil
	}
	if err := p.markAborted(res); err != nil {
		return errors.Join(rerr, err)
	}
	return nil
}
