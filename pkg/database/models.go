package database

import (
	"time"

	"gorm.io/gorm"
)

// ReceivedFrame is one frame emitted by the packet sink
type ReceivedFrame struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	FrameID    string    `gorm:"uniqueIndex;size:36;not null" json:"frame_id"`
	Session    string    `gorm:"index;size:36" json:"session"`
	QueueSeq   uint64    `json:"queue_seq"`
	Length     int       `gorm:"not null" json:"length"`
	Raw        []byte    `json:"raw"`
	Parsed     bool      `gorm:"not null" json:"parsed"`
	FrameType  string    `gorm:"index;size:16" json:"frame_type"`
	MACSeq     uint8     `json:"mac_seq"`
	DstPAN     uint16    `gorm:"index" json:"dst_pan"`
	DstAddr    string    `gorm:"size:24" json:"dst_addr"`
	SrcAddr    string    `gorm:"index;size:24" json:"src_addr"`
	Payload    []byte    `json:"payload"`
	FCSValid   bool      `gorm:"index" json:"fcs_valid"`
	ReceivedAt time.Time `gorm:"index;not null" json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for ReceivedFrame
func (ReceivedFrame) TableName() string {
	return "received_frames"
}

// BeforeCreate hook to ensure timestamps are set
func (f *ReceivedFrame) BeforeCreate(tx *gorm.DB) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = f.CreatedAt
	}
	return nil
}

// Node is a transmitter identified by its MAC source address
type Node struct {
	Address    string    `gorm:"primarykey;size:24" json:"address"`
	PANID      uint16    `gorm:"index" json:"pan_id"`
	FirstSeen  time.Time `gorm:"not null" json:"first_seen"`
	LastSeen   time.Time `gorm:"index;not null" json:"last_seen"`
	LastSeq    uint8     `json:"last_seq"`
	FrameCount int64     `gorm:"default:0" json:"frame_count"`
	BadFCS     int64     `gorm:"default:0" json:"bad_fcs"`
}

// TableName specifies the table name for Node
func (Node) TableName() string {
	return "nodes"
}

// Active reports whether the node was heard within window of now
func (n *Node) Active(window time.Duration, now time.Time) bool {
	return now.Sub(n.LastSeen) <= window
}
