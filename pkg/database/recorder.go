package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/mac"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

// Recorder stores decoded frames and updates the node table. It satisfies
// pipeline.Handler.
type Recorder struct {
	db     *gorm.DB
	frames *FrameRepository
	log    *logger.Logger
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *DB, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		db:     db.GetDB(),
		frames: NewFrameRepository(db.GetDB()),
		log:    log.WithComponent("database.recorder"),
	}
}

// HandleFrame persists one decoded frame and its source node in a single
// transaction
func (r *Recorder) HandleFrame(_ context.Context, d pipeline.Decoded) error {
	rec := FrameFromDecoded(d)
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := NewFrameRepository(tx).Create(rec); err != nil {
			return fmt.Errorf("failed to store frame: %w", err)
		}
		if d.Frame == nil || d.Frame.Src.Mode == mac.AddrNone {
			return nil
		}
		if err := NewNodeRepository(tx).Touch(rec.SrcAddr, d.Frame.Src.PANID, d.Frame.Seq, d.Frame.FCSValid, rec.ReceivedAt); err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
		return nil
	})
}

// FrameFromDecoded maps a decoded frame onto its database record
func FrameFromDecoded(d pipeline.Decoded) *ReceivedFrame {
	rec := &ReceivedFrame{
		FrameID:    d.ID,
		Session:    d.Session,
		QueueSeq:   d.Seq,
		Length:     len(d.Raw),
		Raw:        d.Raw,
		ReceivedAt: d.Received,
	}
	if f := d.Frame; f != nil {
		rec.Parsed = true
		rec.FrameType = f.FCF.Type.String()
		rec.MACSeq = f.Seq
		rec.DstPAN = f.Dst.PANID
		rec.DstAddr = f.Dst.String()
		rec.SrcAddr = f.Src.String()
		rec.Payload = f.Payload
		rec.FCSValid = f.FCSValid
	}
	return rec
}

// RunRetention deletes frames older than maxAge every interval until ctx ends
func (r *Recorder) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := r.frames.DeleteOlderThan(now.Add(-maxAge))
			if err != nil {
				r.log.Warn("Frame retention failed", logger.Error(err))
				continue
			}
			if n > 0 {
				r.log.Info("Pruned old frames", logger.Int64("deleted", n))
			}
		}
	}
}

var _ pipeline.Handler = (*Recorder)(nil)
