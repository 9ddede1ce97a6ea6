package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db, err := NewDB(Config{Path: filepath.Join(t.TempDir(), "test.db")}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB(t *testing.T) {
	db := openTestDB(t)
	if db.db == nil {
		t.Error("Expected non-nil database connection")
	}
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "frames.db")
	db, err := NewDB(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("Failed to create database in nested directory: %v", err)
	}
	defer func() { _ = db.Close() }()
}

func TestNewDB_InMemory(t *testing.T) {
	db, err := NewDB(Config{Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewFrameRepository(db.GetDB())
	if err := repo.Create(&ReceivedFrame{FrameID: "mem-1", Length: 1}); err != nil {
		t.Fatalf("Failed to create frame: %v", err)
	}
	if n, _ := repo.Count(); n != 1 {
		t.Errorf("Expected 1 frame, got %d", n)
	}
}

func TestReceivedFrame_BeforeCreate(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())

	f := &ReceivedFrame{FrameID: "f-1", Length: 3, Raw: []byte{1, 2, 3}}
	if err := repo.Create(f); err != nil {
		t.Fatalf("Failed to create frame: %v", err)
	}

	if f.ID == 0 {
		t.Error("Expected non-zero ID after creation")
	}
	if f.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set by hook")
	}
	if f.ReceivedAt.IsZero() {
		t.Error("Expected ReceivedAt to be set by hook")
	}
}

func TestFrameRepository_DuplicateFrameID(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())

	if err := repo.Create(&ReceivedFrame{FrameID: "dup"}); err != nil {
		t.Fatalf("Failed to create frame: %v", err)
	}
	if err := repo.Create(&ReceivedFrame{FrameID: "dup"}); err == nil {
		t.Error("Expected unique constraint violation")
	}
}

func seedFrames(t *testing.T, repo *FrameRepository, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		f := &ReceivedFrame{
			FrameID:    fmt.Sprintf("frame-%d", i),
			Length:     10 + i,
			Parsed:     true,
			FrameType:  "data",
			SrcAddr:    fmt.Sprintf("1aaa/%04x", i%2),
			FCSValid:   i%3 != 0,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(f); err != nil {
			t.Fatalf("Failed to create frame %d: %v", i, err)
		}
	}
}

func TestFrameRepository_GetRecent(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	seedFrames(t, repo, 5, time.Now())

	frames, err := repo.GetRecent(3)
	if err != nil {
		t.Fatalf("Failed to get recent frames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	if frames[0].FrameID != "frame-4" {
		t.Errorf("Expected most recent frame first, got %s", frames[0].FrameID)
	}
	if frames[0].ReceivedAt.Before(frames[1].ReceivedAt) {
		t.Error("Expected frames ordered by received_at DESC")
	}
}

func TestFrameRepository_GetRecentPaginated(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	seedFrames(t, repo, 10, time.Now())

	tests := []struct {
		page, perPage int
		wantLen       int
		wantFirst     string
	}{
		{1, 4, 4, "frame-9"},
		{2, 4, 4, "frame-5"},
		{3, 4, 2, "frame-1"},
		{4, 4, 0, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			frames, total, err := repo.GetRecentPaginated(tt.page, tt.perPage)
			if err != nil {
				t.Fatalf("Failed to get page: %v", err)
			}
			if total != 10 {
				t.Errorf("Expected total 10, got %d", total)
			}
			if len(frames) != tt.wantLen {
				t.Fatalf("Expected %d frames, got %d", tt.wantLen, len(frames))
			}
			if tt.wantLen > 0 && frames[0].FrameID != tt.wantFirst {
				t.Errorf("Expected first %s, got %s", tt.wantFirst, frames[0].FrameID)
			}
		})
	}
}

func TestFrameRepository_GetBySource(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	seedFrames(t, repo, 6, time.Now())

	frames, err := repo.GetBySource("1aaa/0001", 10)
	if err != nil {
		t.Fatalf("Failed to query by source: %v", err)
	}
	if len(frames) != 3 {
		t.Errorf("Expected 3 frames from 1aaa/0001, got %d", len(frames))
	}
	for _, f := range frames {
		if f.SrcAddr != "1aaa/0001" {
			t.Errorf("Unexpected source %s", f.SrcAddr)
		}
	}
}

func TestFrameRepository_GetByTimeRange(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	base := time.Now().Add(-time.Hour)
	seedFrames(t, repo, 10, base)

	frames, err := repo.GetByTimeRange(base.Add(2*time.Minute), base.Add(5*time.Minute), 100)
	if err != nil {
		t.Fatalf("Failed to query time range: %v", err)
	}
	if len(frames) != 4 {
		t.Errorf("Expected 4 frames in range, got %d", len(frames))
	}
}

func TestFrameRepository_FCSCounts(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	seedFrames(t, repo, 6, time.Now())
	// Unparsed frames never count toward either side
	if err := repo.Create(&ReceivedFrame{FrameID: "raw"}); err != nil {
		t.Fatalf("Failed to create frame: %v", err)
	}

	valid, invalid, err := repo.FCSCounts()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if valid != 4 || invalid != 2 {
		t.Errorf("Expected 4 valid / 2 invalid, got %d / %d", valid, invalid)
	}
}

func TestFrameRepository_DeleteOlderThan(t *testing.T) {
	db := openTestDB(t)
	repo := NewFrameRepository(db.GetDB())
	base := time.Now().Add(-10 * time.Minute)
	seedFrames(t, repo, 10, base)

	deleted, err := repo.DeleteOlderThan(base.Add(4*time.Minute + 30*time.Second))
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if deleted != 5 {
		t.Errorf("Expected 5 deleted, got %d", deleted)
	}
	if n, _ := repo.Count(); n != 5 {
		t.Errorf("Expected 5 remaining, got %d", n)
	}
}

func TestNodeRepository_Touch(t *testing.T) {
	db := openTestDB(t)
	repo := NewNodeRepository(db.GetDB())

	first := time.Now().Add(-time.Minute).Truncate(time.Second)
	second := first.Add(30 * time.Second)

	if err := repo.Touch("1aaa/0001", 0x1AAA, 1, true, first); err != nil {
		t.Fatalf("Failed to touch node: %v", err)
	}
	if err := repo.Touch("1aaa/0001", 0x1AAA, 2, false, second); err != nil {
		t.Fatalf("Failed to touch node: %v", err)
	}

	node, err := repo.Get("1aaa/0001")
	if err != nil {
		t.Fatalf("Failed to get node: %v", err)
	}
	if node.FrameCount != 2 || node.BadFCS != 1 {
		t.Errorf("Expected 2 frames / 1 bad, got %d / %d", node.FrameCount, node.BadFCS)
	}
	if node.LastSeq != 2 {
		t.Errorf("Expected last seq 2, got %d", node.LastSeq)
	}
	if !node.FirstSeen.Equal(first) || !node.LastSeen.Equal(second) {
		t.Errorf("Unexpected first/last seen: %v / %v", node.FirstSeen, node.LastSeen)
	}
	if !node.Active(time.Minute, second.Add(10*time.Second)) {
		t.Error("Expected node to be active")
	}
	if node.Active(time.Minute, second.Add(2*time.Minute)) {
		t.Error("Expected node to be inactive")
	}
}

func TestNodeRepository_ListCountDelete(t *testing.T) {
	db := openTestDB(t)
	repo := NewNodeRepository(db.GetDB())

	now := time.Now()
	for i := 0; i < 3; i++ {
		addr := fmt.Sprintf("1aaa/%04x", i)
		if err := repo.Touch(addr, 0x1AAA, 0, true, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Failed to touch node: %v", err)
		}
	}

	nodes, err := repo.List(10)
	if err != nil {
		t.Fatalf("Failed to list nodes: %v", err)
	}
	if len(nodes) != 3 || nodes[0].Address != "1aaa/0002" {
		t.Errorf("Expected 3 nodes, most recent first; got %+v", nodes)
	}

	if n, _ := repo.Count(); n != 3 {
		t.Errorf("Expected 3 nodes, got %d", n)
	}
	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("Failed to delete nodes: %v", err)
	}
	if n, _ := repo.Count(); n != 0 {
		t.Errorf("Expected 0 nodes, got %d", n)
	}

	_, err = repo.Get("1aaa/0000")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}
