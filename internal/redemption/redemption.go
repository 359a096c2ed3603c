// Package redemption processes reward redemption commands: an all-or-nothing
// exchange of loyalty points for a stock-bounded reward item.
package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/metrics"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Command is the wire shape of a redemption request on commands.redeem.
type Command struct {
	ProjectID    string `json:"projectId"`
	UserID       string `json:"userId"`
	RewardItemID string `json:"rewardItemId"`
	RequestID    string `json:"requestId,omitempty"`
}

// Outcome classifies how a command settled.
type Outcome string

const (
	OutcomeFulfilled          Outcome = "fulfilled"
	OutcomeInvalid            Outcome = "invalid"
	OutcomeUnknownReward      Outcome = "unknown_reward"
	OutcomeInactiveReward     Outcome = "inactive_reward"
	OutcomeInsufficientPoints Outcome = "insufficient_points"
	OutcomeOutOfStock         Outcome = "out_of_stock"
)

// Result reports the settlement of one command. Redemption is non-nil only
// when the outcome is fulfilled.
type Result struct {
	Outcome    Outcome
	Redemption *models.RedemptionTransaction
}

// Processor settles redemption commands against the store.
type Processor struct {
	users   repository.UserStore
	rewards repository.RewardStore
	emitter publisher.Emitter
	logger  *logging.Logger
}

func NewProcessor(users repository.UserStore, rewards repository.RewardStore, emitter publisher.Emitter, logger *logging.Logger) *Processor {
	return &Processor{users: users, rewards: rewards, emitter: emitter, logger: logger}
}

// Process validates and settles one command. Business rejections (unknown
// reward, not enough points, empty stock) are outcomes, not errors; an
// error means the attempt itself failed and the message should redeliver.
func (p *Processor) Process(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd.ProjectID == "" || cmd.UserID == "" || cmd.RewardItemID == "" {
		return &Result{Outcome: OutcomeInvalid}, nil
	}

	user, err := p.users.FindOrCreateUser(ctx, cmd.ProjectID, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	item, err := p.rewards.GetRewardItem(ctx, cmd.ProjectID, cmd.RewardItemID)
	if errors.Is(err, repository.ErrRewardNotFound) {
		return &Result{Outcome: OutcomeUnknownReward}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reward item: %w", err)
	}
	if !item.Active {
		return &Result{Outcome: OutcomeInactiveReward}, nil
	}

	redemption, err := p.rewards.Redeem(ctx, user.ID, item)
	switch {
	case errors.Is(err, repository.ErrInsufficientPoints):
		return &Result{Outcome: OutcomeInsufficientPoints}, nil
	case errors.Is(err, repository.ErrOutOfStock):
		return &Result{Outcome: OutcomeOutOfStock}, nil
	case err != nil:
		return nil, fmt.Errorf("redeem: %w", err)
	}

	p.logger.InfoContext(ctx, "reward redeemed",
		logging.FieldProjectID, cmd.ProjectID,
		logging.FieldEndUserID, user.ID,
		logging.FieldAmount, item.PointCost,
		"reward_item_id", item.ID)

	cause := &models.Envelope{
		ProjectID: cmd.ProjectID,
		UserID:    cmd.UserID,
		Event:     "redeem.requested",
		Source:    models.SourceServer,
	}
	_ = p.emitter.Emit(ctx, cause, models.EventRewardRedeemed, map[string]any{
		"rewardItemId":  item.ID,
		"rewardName":    item.Name,
		"pointCost":     item.PointCost,
		"redemptionId":  redemption.ID,
		"requestId":     cmd.RequestID,
	})

	return &Result{Outcome: OutcomeFulfilled, Redemption: redemption}, nil
}

// HandleMessage adapts Process to the bus. Malformed payloads are dropped;
// only infrastructure failures propagate for redelivery.
func (p *Processor) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		metrics.Redemptions.WithLabelValues(string(OutcomeInvalid)).Inc()
		p.logger.WarnContext(ctx, "dropping malformed redemption command",
			logging.FieldError, err)
		return nil
	}

	result, err := p.Process(ctx, &cmd)
	if err != nil {
		p.logger.ErrorContext(ctx, "redemption attempt failed",
			logging.FieldProjectID, cmd.ProjectID, logging.FieldError, err)
		return err
	}

	metrics.Redemptions.WithLabelValues(string(result.Outcome)).Inc()
	if result.Outcome != OutcomeFulfilled {
		p.logger.InfoContext(ctx, "redemption rejected",
			logging.FieldProjectID, cmd.ProjectID,
			"outcome", string(result.Outcome))
	}
	return nil
}
