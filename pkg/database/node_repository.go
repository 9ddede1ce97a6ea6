package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// NodeRepository tracks transmitters heard on the channel
type NodeRepository struct {
	db *gorm.DB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Touch records a frame from addr, creating the node on first sight
func (r *NodeRepository) Touch(addr string, panID uint16, seq uint8, fcsValid bool, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var node Node
		err := tx.Where("address = ?", addr).First(&node).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			node = Node{Address: addr, FirstSeen: at}
		case err != nil:
			return err
		}

		node.PANID = panID
		node.LastSeq = seq
		if at.After(node.LastSeen) {
			node.LastSeen = at
		}
		node.FrameCount++
		if !fcsValid {
			node.BadFCS++
		}
		return tx.Save(&node).Error
	})
}

// Get retrieves a node by address
func (r *NodeRepository) Get(addr string) (*Node, error) {
	var node Node
	err := r.db.Where("address = ?", addr).First(&node).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// List returns nodes ordered by most recently heard
func (r *NodeRepository) List(limit int) ([]Node, error) {
	var nodes []Node
	err := r.db.Order("last_seen DESC").Limit(limit).Find(&nodes).Error
	return nodes, err
}

// Count returns the number of known nodes
func (r *NodeRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Node{}).Count(&count).Error
	return count, err
}

// DeleteAll removes all nodes
func (r *NodeRepository) DeleteAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Node{}).Error
}
