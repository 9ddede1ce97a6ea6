package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/mac"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

func decodedData(id string, src uint16, fcsOK bool) pipeline.Decoded {
	return pipeline.Decoded{
		ID:       id,
		Session:  "session-1",
		Seq:      1,
		Received: time.Now(),
		Raw:      []byte{0x01, 0x88},
		Frame: &mac.Frame{
			FCF:      mac.DataFCF(),
			Seq:      9,
			Dst:      mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: 0xFFFF},
			Src:      mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: src},
			Payload:  []byte("temp=21"),
			FCSValid: fcsOK,
		},
	}
}

func TestRecorder_HandleFrame(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)
	ctx := context.Background()

	if err := rec.HandleFrame(ctx, decodedData("a", 0x0001, true)); err != nil {
		t.Fatalf("HandleFrame failed: %v", err)
	}
	if err := rec.HandleFrame(ctx, decodedData("b", 0x0001, false)); err != nil {
		t.Fatalf("HandleFrame failed: %v", err)
	}

	frames, err := NewFrameRepository(db.GetDB()).GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	f := frames[1]
	if !f.Parsed || f.FrameType != "data" || f.SrcAddr != "1aaa/0001" || string(f.Payload) != "temp=21" {
		t.Errorf("Unexpected record: %+v", f)
	}

	node, err := NewNodeRepository(db.GetDB()).Get("1aaa/0001")
	if err != nil {
		t.Fatalf("Node not recorded: %v", err)
	}
	if node.FrameCount != 2 || node.BadFCS != 1 {
		t.Errorf("Unexpected node counters: %+v", node)
	}
}

func TestRecorder_UnparsedFrame(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)

	d := pipeline.Decoded{ID: "raw", Raw: []byte{0xAB}, ParseErr: errors.New("too short")}
	if err := rec.HandleFrame(context.Background(), d); err != nil {
		t.Fatalf("HandleFrame failed: %v", err)
	}

	frames, _ := NewFrameRepository(db.GetDB()).GetRecent(1)
	if len(frames) != 1 || frames[0].Parsed {
		t.Errorf("Expected one unparsed record, got %+v", frames)
	}
	if n, _ := NewNodeRepository(db.GetDB()).Count(); n != 0 {
		t.Errorf("Expected no nodes for unparsed frame, got %d", n)
	}
}

func TestRecorder_NodeFailureRollsBackFrame(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)

	if err := db.GetDB().Migrator().DropTable(&Node{}); err != nil {
		t.Fatalf("Failed to drop nodes table: %v", err)
	}

	if err := rec.HandleFrame(context.Background(), decodedData("a", 0x0001, true)); err == nil {
		t.Fatal("Expected an error when the node table is missing")
	}

	n, err := NewFrameRepository(db.GetDB()).Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected the frame to be rolled back, got %d rows", n)
	}
}

func TestRecorder_RunRetention(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)
	repo := NewFrameRepository(db.GetDB())

	old := &ReceivedFrame{FrameID: "old", ReceivedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &ReceivedFrame{FrameID: "fresh", ReceivedAt: time.Now()}
	for _, f := range []*ReceivedFrame{old, fresh} {
		if err := repo.Create(f); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.RunRetention(ctx, time.Hour, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := repo.Count(); n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	frames, _ := repo.GetRecent(10)
	if len(frames) != 1 || frames[0].FrameID != "fresh" {
		t.Errorf("Expected only the fresh frame to remain, got %+v", frames)
	}
}

func TestRecorder_RetentionDisabled(t *testing.T) {
	rec := NewRecorder(openTestDB(t), nil)
	// Returns immediately when maxAge is zero
	rec.RunRetention(context.Background(), 0, time.Millisecond)
}
