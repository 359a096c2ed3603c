package models

import "time"

// RewardItem is a stock-bounded catalog item redeemable for points.
type RewardItem struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	PointCost     int64  `json:"point_cost"`
	StockQuantity int    `json:"stock_quantity"`
	Active        bool   `json:"active"`
}

/// RedemptionTransaction records one successful redemption: the points
// debit, the stock decrement, and the ledger entry commit together.
type RedemptionTransaction struct {
	ID           string    `json:"id"`
	EndUserID    string    `json:"end_user_id"`
	RewardItemID string    `json:"reward_item_id"`
	PointCost    int64     `json:"point_cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// StuckEvent marks a source event whose state mutation committed but whose
// derived-event emission failed. The sweep redispatches these; handlers are
// idempotent so the replay is safe.
type StuckEvent struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Subject    string    `json:"subject"`
	Payload    []byte    `json:"payload"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}
