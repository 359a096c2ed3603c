package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questforge-labs/questforge/common/database"
	"github.com/questforge-labs/questforge/internal/models"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool so the catalog can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

const userColumns = `id, project_id, external_id, loyalty_points, tier_id, commission_plan_id, referral_code, metadata, created_at, updated_at`

func scanUser(row pgx.Row) (*models.EndUser, error) {
	var user models.EndUser
	var tierID, planID, referralCode *string
	var metadataJSON []byte

	err := row.Scan(
		&user.ID,
		&user.ProjectID,
		&user.ExternalID,
		&user.LoyaltyPoints,
		&tierID,
		&planID,
		&referralCode,
		&metadataJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tierID != nil {
		user.TierID = *tierID
	}
	if planID != nil {
		user.CommissionPlanID = *planID
	}
	if referralCode != nil {
		user.ReferralCode = *referralCode
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &user.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal user metadata: %w", err)
		}
	}

	return &user, nil
}

// FindOrCreateUser resolves an external id to an end user row, creating it
// if absent. The ON CONFLICT no-op update makes the statement return the
// winning row under concurrent creation.
func (s *PostgresStore) FindOrCreateUser(ctx context.Context, projectID, externalID string) (*models.EndUser, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO end_users (id, project_id, external_id, referral_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (project_id, external_id)
		DO UPDATE SET updated_at = end_users.updated_at
		RETURNING ` + userColumns

	user, err := scanUser(s.pool.QueryRow(ctx, query, newID(), projectID, externalID, newReferralCode()))
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, endUserID string) (*models.EndUser, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM end_users WHERE id = $1`
	user, err := scanUser(s.pool.QueryRow(ctx, query, endUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByReferralCode(ctx context.Context, projectID, code string) (*models.EndUser, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM end_users WHERE project_id = $1 AND referral_code = $2`
	user, err := scanUser(s.pool.QueryRow(ctx, query, projectID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return user, nil
}

// AppendLedger applies the amount to the balance and writes the audit entry
// in one transaction so BalanceAfter can never drift from the counter.
func (s *PostgresStore) AppendLedger(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	ctx, cancel := database.TxContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceAfter int64
	err = tx.QueryRow(ctx,
		`UPDATE end_users SET loyalty_points = loyalty_points + $2, updated_at = NOW() WHERE id = $1 RETURNING loyalty_points`,
		endUserID, amount,
	).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apply balance: %w", err)
	}

	entry, err := insertLedgerEntry(ctx, tx, endUserID, amount, balanceAfter, entryType, referenceID, referenceType)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}
	return entry, nil
}

// DebitPoints is the conditional form: the balance update carries its own
// precondition so two concurrent debits cannot both succeed past zero.
func (s *PostgresStore) DebitPoints(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	ctx, cancel := database.TxContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := debitPointsTx(ctx, tx, endUserID, amount, entryType, referenceID, referenceType)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit debit tx: %w", err)
	}
	return entry, nil
}

func debitPointsTx(ctx context.Context, tx pgx.Tx, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	var balanceAfter int64
	err := tx.QueryRow(ctx,
		`UPDATE end_users SET loyalty_points = loyalty_points - $2, updated_at = NOW()
		 WHERE id = $1 AND loyalty_points >= $2
		 RETURNING loyalty_points`,
		endUserID, amount,
	).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the precondition: either the user is gone or the balance
		// does not cover the debit.
		return nil, ErrInsufficientPoints
	}
	if err != nil {
		return nil, fmt.Errorf("conditional debit: %w", err)
	}

	return insertLedgerEntry(ctx, tx, endUserID, -amount, balanceAfter, entryType, referenceID, referenceType)
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, endUserID string, amount, balanceAfter int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	entry := &models.LoyaltyLedgerEntry{
		ID:            newID(),
		EndUserID:     endUserID,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		Type:          entryType,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO loyalty_ledger (id, end_user_id, amount, balance_after, type, reference_id, reference_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		entry.ID, entry.EndUserID, entry.Amount, entry.BalanceAfter, entry.Type, entry.ReferenceID, entry.ReferenceType, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) SetUserTier(ctx context.Context, endUserID, tierID string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE end_users SET tier_id = $2, updated_at = NOW() WHERE id = $1`,
		endUserID, tierID,
	)
	if err != nil {
		return fmt.Errorf("set user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AwardBadge relies on the (end_user_id, badge_id) unique constraint to
// convert repeat attempts into no-ops.
func (s *PostgresStore) AwardBadge(ctx context.Context, endUserID, badgeID string) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_badges (end_user_id, badge_id, awarded_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (end_user_id, badge_id) DO NOTHING`,
		endUserID, badgeID,
	)
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) HasBadge(ctx context.Context, endUserID, badgeID string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_badges WHERE end_user_id = $1 AND badge_id = $2)`,
		endUserID, badgeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check badge ownership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetOrCreateQuestProgress(ctx context.Context, endUserID, questID string) (*models.UserQuestProgress, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	// First touch creates the row already in_progress; the no-op update
	// makes RETURNING yield the existing row otherwise.
	query := `
		INSERT INTO user_quest_progress (end_user_id, quest_id, status, percent_complete)
		VALUES ($1, $2, 'in_progress', 0)
		ON CONFLICT (end_user_id, quest_id)
		DO UPDATE SET end_user_id = user_quest_progress.end_user_id
		RETURNING end_user_id, quest_id, status, percent_complete, completed_at
	`

	var progress models.UserQuestProgress
	err := s.pool.QueryRow(ctx, query, endUserID, questID).Scan(
		&progress.EndUserID,
		&progress.QuestID,
		&progress.Status,
		&progress.PercentComplete,
		&progress.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create quest progress: %w", err)
	}
	return &progress, nil
}

func (s *PostgresStore) GetOrCreateStepProgress(ctx context.Context, endUserID string, step *models.QuestStep) (*models.UserStepProgress, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO user_step_progress (end_user_id, step_id, quest_id, current_count, is_complete)
		VALUES ($1, $2, $3, 0, FALSE)
		ON CONFLICT (end_user_id, step_id)
		DO UPDATE SET end_user_id = user_step_progress.end_user_id
		RETURNING end_user_id, step_id, quest_id, current_count, is_complete
	`

	var progress models.UserStepProgress
	err := s.pool.QueryRow(ctx, query, endUserID, step.ID, step.QuestID).Scan(
		&progress.EndUserID,
		&progress.StepID,
		&progress.QuestID,
		&progress.CurrentCount,
		&progress.IsComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create step progress: %w", err)
	}
	return &progress, nil
}

func (s *PostgresStore) IncrementStepCount(ctx context.Context, endUserID, stepID string) (int, bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var newCount int
	err := s.pool.QueryRow(ctx,
		`UPDATE user_step_progress SET current_count = current_count + 1
		 WHERE end_user_id = $1 AND step_id = $2 AND NOT is_complete
		 RETURNING current_count`,
		endUserID, stepID,
	).Scan(&newCount)
	if errors.Is(err, pgx.ErrNoRows) {
		// Step already complete: the increment is a no-op, not an error.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment step count: %w", err)
	}
	return newCount, true, nil
}

func (s *PostgresStore) MarkStepComplete(ctx context.Context, endUserID, stepID string) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE user_step_progress SET is_complete = TRUE
		 WHERE end_user_id = $1 AND step_id = $2 AND NOT is_complete`,
		endUserID, stepID,
	)
	if err != nil {
		return false, fmt.Errorf("mark step complete: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListStepProgress(ctx context.Context, endUserID, questID string) ([]*models.UserStepProgress, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT end_user_id, step_id, quest_id, current_count, is_complete
		 FROM user_step_progress
		 WHERE end_user_id = $1 AND quest_id = $2`,
		endUserID, questID,
	)
	if err != nil {
		return nil, fmt.Errorf("list step progress: %w", err)
	}
	defer rows.Close()

	var progress []*models.UserStepProgress
	for rows.Next() {
		var p models.UserStepProgress
		if err := rows.Scan(&p.EndUserID, &p.StepID, &p.QuestID, &p.CurrentCount, &p.IsComplete); err != nil {
			return nil, fmt.Errorf("scan step progress: %w", err)
		}
		progress = append(progress, &p)
	}
	return progress, rows.Err()
}

func (s *PostgresStore) SetQuestPercent(ctx context.Context, endUserID, questID string, percent int) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`UPDATE user_quest_progress SET percent_complete = $3
		 WHERE end_user_id = $1 AND quest_id = $2 AND status <> 'completed'`,
		endUserID, questID, percent,
	)
	if err != nil {
		return fmt.Errorf("set quest percent: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteQuest(ctx context.Context, endUserID, questID string, percent int) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE user_quest_progress
		 SET status = 'completed', percent_complete = $3, completed_at = NOW()
		 WHERE end_user_id = $1 AND quest_id = $2 AND status <> 'completed'`,
		endUserID, questID, percent,
	)
	if err != nil {
		return false, fmt.Errorf("complete quest: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetOrCreateStreak(ctx context.Context, endUserID string, rule *models.StreakRule) (*models.UserStreak, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO user_streaks (end_user_id, streak_rule_id, current_count, max_streak, freeze_inventory, freeze_used_today, status, last_milestone_day)
		VALUES ($1, $2, 0, 0, $3, FALSE, 'inactive', 0)
		ON CONFLICT (end_user_id, streak_rule_id)
		DO UPDATE SET end_user_id = user_streaks.end_user_id
		RETURNING end_user_id, streak_rule_id, current_count, max_streak, last_activity_date, freeze_inventory, freeze_used_today, status, last_milestone_day
	`

	var streak models.UserStreak
	err := s.pool.QueryRow(ctx, query, endUserID, rule.ID, rule.DefaultFreezeCount).Scan(
		&streak.EndUserID,
		&streak.StreakRuleID,
		&streak.CurrentCount,
		&streak.MaxStreak,
		&streak.LastActivityDate,
		&streak.FreezeInventory,
		&streak.FreezeUsedToday,
		&streak.Status,
		&streak.LastMilestoneDay,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create streak: %w", err)
	}
	return &streak, nil
}

func (s *PostgresStore) UpdateStreak(ctx context.Context, streak *models.UserStreak) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE user_streaks
		 SET current_count = $3, max_streak = $4, last_activity_date = $5,
		     freeze_inventory = $6, freeze_used_today = $7, status = $8, last_milestone_day = $9
		 WHERE end_user_id = $1 AND streak_rule_id = $2`,
		streak.EndUserID, streak.StreakRuleID, streak.CurrentCount, streak.MaxStreak,
		streak.LastActivityDate, streak.FreezeInventory, streak.FreezeUsedToday,
		streak.Status, streak.LastMilestoneDay,
	)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStreakNotFound
	}
	return nil
}

func (s *PostgresStore) AppendStreakHistory(ctx context.Context, entry *models.StreakHistoryEntry) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO streak_history (id, end_user_id, streak_rule_id, action, count_after, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		entry.ID, entry.EndUserID, entry.StreakRuleID, entry.Action, entry.CountAfter, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append streak history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetFreezeFlags(ctx context.Context) (int64, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE user_streaks SET freeze_used_today = FALSE WHERE freeze_used_today`)
	if err != nil {
		return 0, fmt.Errorf("reset freeze flags: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LinkReferral is set-once: the unique constraint on
// (project_id, referred_external_id) drops any later link attempt.
func (s *PostgresStore) LinkReferral(ctx context.Context, tracking *models.ReferralTracking) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO referral_tracking (project_id, referrer_id, referred_external_id, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (project_id, referred_external_id) DO NOTHING`,
		tracking.ProjectID, tracking.ReferrerID, tracking.ReferredExternalID,
	)
	if err != nil {
		return false, fmt.Errorf("link referral: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetReferrer(ctx context.Context, projectID, referredExternalID string) (*models.ReferralTracking, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var tracking models.ReferralTracking
	err := s.pool.QueryRow(ctx,
		`SELECT project_id, referrer_id, referred_external_id, created_at
		 FROM referral_tracking
		 WHERE project_id = $1 AND referred_external_id = $2`,
		projectID, referredExternalID,
	).Scan(&tracking.ProjectID, &tracking.ReferrerID, &tracking.ReferredExternalID, &tracking.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReferralNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get referrer: %w", err)
	}
	return &tracking, nil
}

func (s *PostgresStore) InsertCommission(ctx context.Context, entry *models.CommissionLedgerEntry) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO commission_ledger (id, end_user_id, commission_plan_id, amount, source_amount, status, source_event_id, order_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		entry.ID, entry.EndUserID, entry.CommissionPlanID, entry.Amount, entry.SourceAmount,
		entry.Status, entry.SourceEventID, entry.OrderID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRewardItem(ctx context.Context, projectID, rewardItemID string) (*models.RewardItem, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var item models.RewardItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, point_cost, stock_quantity, active
		 FROM reward_items
		 WHERE id = $1 AND project_id = $2`,
		rewardItemID, projectID,
	).Scan(&item.ID, &item.ProjectID, &item.Name, &item.PointCost, &item.StockQuantity, &item.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reward item: %w", err)
	}
	return &item, nil
}

// Redeem composes the conditional points debit, the conditional stock
// decrement, and the bookkeeping inserts in one transaction. Any failed
// precondition aborts the whole thing.
func (s *PostgresStore) Redeem(ctx context.Context, endUserID string, item *models.RewardItem) (*models.RedemptionTransaction, error) {
	ctx, cancel := database.TxContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin redemption tx: %w", err)
	}
	defer tx.Rollback(ctx)

	redemption := &models.RedemptionTransaction{
		ID:           newID(),
		EndUserID:    endUserID,
		RewardItemID: item.ID,
		PointCost:    item.PointCost,
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := debitPointsTx(ctx, tx, endUserID, item.PointCost, models.LedgerTypeRedemption, redemption.ID, "redemption"); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE reward_items SET stock_quantity = stock_quantity - 1
		 WHERE id = $1 AND stock_quantity > 0`,
		item.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOutOfStock
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO redemption_transactions (id, end_user_id, reward_item_id, point_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		redemption.ID, redemption.EndUserID, redemption.RewardItemID, redemption.PointCost, redemption.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redemption tx: %w", err)
	}
	return redemption, nil
}

func (s *PostgresStore) MarkStuck(ctx context.Context, stuck *models.StuckEvent) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	if stuck.ID == "" {
		stuck.ID = newID()
	}
	if stuck.CreatedAt.IsZero() {
		stuck.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO stuck_events (id, project_id, subject, payload, reason, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		stuck.ID, stuck.ProjectID, stuck.Subject, stuck.Payload, stuck.Reason, stuck.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("mark stuck event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, limit int) ([]*models.StuckEvent, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, subject, payload, reason, retry_count, created_at
		 FROM stuck_events
		 WHERE resolved_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stuck events: %w", err)
	}
	defer rows.Close()

	var stuck []*models.StuckEvent
	for rows.Next() {
		var s models.StuckEvent
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Subject, &s.Payload, &s.Reason, &s.RetryCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stuck event: %w", err)
		}
		stuck = append(stuck, &s)
	}
	return stuck, rows.Err()
}

func (s *PostgresStore) ResolveStuck(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `UPDATE stuck_events SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("resolve stuck event: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementStuckRetry(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `UPDATE stuck_events SET retry_count = retry_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment stuck retry: %w", err)
	}
	return nil
}
