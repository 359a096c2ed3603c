package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/questforge-labs/questforge/internal/models"
)

// InMemoryStore implements Store with maps and a mutex. Used by handler
// tests and local development; the precondition semantics match the
// Postgres implementation exactly.
type InMemoryStore struct {
	mu sync.Mutex

	users        map[string]*models.EndUser // by internal id
	usersByExt   map[string]*models.EndUser // by projectID|externalID
	ledger       map[string][]*models.LoyaltyLedgerEntry
	badges       map[string]map[string]bool // endUserID -> badgeID set
	quests       map[string]*models.UserQuestProgress
	steps        map[string]*models.UserStepProgress
	streaks      map[string]*models.UserStreak
	history      []*models.StreakHistoryEntry
	referrals    map[string]*models.ReferralTracking // projectID|referredExternalID
	commissions  []*models.CommissionLedgerEntry
	rewards      map[string]*models.RewardItem
	redemptions  []*models.RedemptionTransaction
	stuckEvents  map[string]*models.StuckEvent
	referralCode map[string]*models.EndUser // projectID|code
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:        make(map[string]*models.EndUser),
		usersByExt:   make(map[string]*models.EndUser),
		ledger:       make(map[string][]*models.LoyaltyLedgerEntry),
		badges:       make(map[string]map[string]bool),
		quests:       make(map[string]*models.UserQuestProgress),
		steps:        make(map[string]*models.UserStepProgress),
		streaks:      make(map[string]*models.UserStreak),
		referrals:    make(map[string]*models.ReferralTracking),
		rewards:      make(map[string]*models.RewardItem),
		stuckEvents:  make(map[string]*models.StuckEvent),
		referralCode: make(map[string]*models.EndUser),
	}
}

func (s *InMemoryStore) Close() {}

func pairKey(a, b string) string { return a + "|" + b }

func (s *InMemoryStore) FindOrCreateUser(ctx context.Context, projectID, externalID string) (*models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(projectID, externalID)
	if user, ok := s.usersByExt[key]; ok {
		return user, nil
	}

	now := time.Now().UTC()
	user := &models.EndUser{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		ExternalID:   externalID,
		ReferralCode: uuid.NewString()[:8],
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	s.usersByExt[key] = user
	s.referralCode[pairKey(projectID, user.ReferralCode)] = user
	return user, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, endUserID string) (*models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[endUserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *InMemoryStore) GetUserByReferralCode(ctx context.Context, projectID, code string) (*models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.referralCode[pairKey(projectID, code)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *InMemoryStore) appendLedgerLocked(user *models.EndUser, amount int64, entryType, referenceID, referenceType string) *models.LoyaltyLedgerEntry {
	user.LoyaltyPoints += amount
	user.UpdatedAt = time.Now().UTC()
	entry := &models.LoyaltyLedgerEntry{
		ID:            uuid.NewString(),
		EndUserID:     user.ID,
		Amount:        amount,
		BalanceAfter:  user.LoyaltyPoints,
		Type:          entryType,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now().UTC(),
	}
	s.ledger[user.ID] = append(s.ledger[user.ID], entry)
	return entry
}

func (s *InMemoryStore) AppendLedger(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[endUserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.appendLedgerLocked(user, amount, entryType, referenceID, referenceType), nil
}

func (s *InMemoryStore) DebitPoints(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[endUserID]
	if !ok || user.LoyaltyPoints < amount {
		return nil, ErrInsufficientPoints
	}
	return s.appendLedgerLocked(user, -amount, entryType, referenceID, referenceType), nil
}

func (s *InMemoryStore) SetUserTier(ctx context.Context, endUserID, tierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[endUserID]
	if !ok {
		return ErrUserNotFound
	}
	user.TierID = tierID
	return nil
}

// SetCommissionPlan assigns a user's explicit commission plan. Test helper.
func (s *InMemoryStore) SetCommissionPlan(endUserID, planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[endUserID]; ok {
		user.CommissionPlanID = planID
	}
}

// LedgerEntries returns a user's ledger, oldest first. Test helper.
func (s *InMemoryStore) LedgerEntries(endUserID string) []*models.LoyaltyLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.LoyaltyLedgerEntry(nil), s.ledger[endUserID]...)
}

func (s *InMemoryStore) AwardBadge(ctx context.Context, endUserID, badgeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.badges[endUserID]
	if !ok {
		owned = make(map[string]bool)
		s.badges[endUserID] = owned
	}
	if owned[badgeID] {
		return false, nil
	}
	owned[badgeID] = true
	return true, nil
}

func (s *InMemoryStore) HasBadge(ctx context.Context, endUserID, badgeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badges[endUserID][badgeID], nil
}

func (s *InMemoryStore) GetOrCreateQuestProgress(ctx context.Context, endUserID, questID string) (*models.UserQuestProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(endUserID, questID)
	if progress, ok := s.quests[key]; ok {
		return progress, nil
	}
	progress := &models.UserQuestProgress{
		EndUserID: endUserID,
		QuestID:   questID,
		Status:    models.QuestInProgress,
	}
	s.quests[key] = progress
	return progress, nil
}

func (s *InMemoryStore) GetOrCreateStepProgress(ctx context.Context, endUserID string, step *models.QuestStep) (*models.UserStepProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(endUserID, step.ID)
	if progress, ok := s.steps[key]; ok {
		return progress, nil
	}
	progress := &models.UserStepProgress{
		EndUserID: endUserID,
		StepID:    step.ID,
		QuestID:   step.QuestID,
	}
	s.steps[key] = progress
	return progress, nil
}

func (s *InMemoryStore) IncrementStepCount(ctx context.Context, endUserID, stepID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress, ok := s.steps[pairKey(endUserID, stepID)]
	if !ok || progress.IsComplete {
		return 0, false, nil
	}
	progress.CurrentCount++
	return progress.CurrentCount, true, nil
}

func (s *InMemoryStore) MarkStepComplete(ctx context.Context, endUserID, stepID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress, ok := s.steps[pairKey(endUserID, stepID)]
	if !ok || progress.IsComplete {
		return false, nil
	}
	progress.IsComplete = true
	return true, nil
}

func (s *InMemoryStore) ListStepProgress(ctx context.Context, endUserID, questID string) ([]*models.UserStepProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.UserStepProgress
	for _, p := range s.steps {
		if p.EndUserID == endUserID && p.QuestID == questID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SetQuestPercent(ctx context.Context, endUserID, questID string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if progress, ok := s.quests[pairKey(endUserID, questID)]; ok && progress.Status != models.QuestCompleted {
		progress.PercentComplete = percent
	}
	return nil
}

func (s *InMemoryStore) CompleteQuest(ctx context.Context, endUserID, questID string, percent int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress, ok := s.quests[pairKey(endUserID, questID)]
	if !ok || progress.Status == models.QuestCompleted {
		return false, nil
	}
	now := time.Now().UTC()
	progress.Status = models.QuestCompleted
	progress.PercentComplete = percent
	progress.CompletedAt = &now
	return true, nil
}

func (s *InMemoryStore) GetOrCreateStreak(ctx context.Context, endUserID string, rule *models.StreakRule) (*models.UserStreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(endUserID, rule.ID)
	if streak, ok := s.streaks[key]; ok {
		return streak, nil
	}
	streak := &models.UserStreak{
		EndUserID:       endUserID,
		StreakRuleID:    rule.ID,
		FreezeInventory: rule.DefaultFreezeCount,
		Status:          models.StreakInactive,
	}
	s.streaks[key] = streak
	return streak, nil
}

func (s *InMemoryStore) UpdateStreak(ctx context.Context, streak *models.UserStreak) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(streak.EndUserID, streak.StreakRuleID)
	if _, ok := s.streaks[key]; !ok {
		return ErrStreakNotFound
	}
	s.streaks[key] = streak
	return nil
}

func (s *InMemoryStore) AppendStreakHistory(ctx context.Context, entry *models.StreakHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.history = append(s.history, entry)
	return nil
}

// StreakHistory returns all appended history rows. Test helper.
func (s *InMemoryStore) StreakHistory() []*models.StreakHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.StreakHistoryEntry(nil), s.history...)
}

func (s *InMemoryStore) ResetFreezeFlags(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for _, streak := range s.streaks {
		if streak.FreezeUsedToday {
			streak.FreezeUsedToday = false
			cleared++
		}
	}
	return cleared, nil
}

func (s *InMemoryStore) LinkReferral(ctx context.Context, tracking *models.ReferralTracking) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(tracking.ProjectID, tracking.ReferredExternalID)
	if _, ok := s.referrals[key]; ok {
		return false, nil
	}
	if tracking.CreatedAt.IsZero() {
		tracking.CreatedAt = time.Now().UTC()
	}
	s.referrals[key] = tracking
	return true, nil
}

func (s *InMemoryStore) GetReferrer(ctx context.Context, projectID, referredExternalID string) (*models.ReferralTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracking, ok := s.referrals[pairKey(projectID, referredExternalID)]
	if !ok {
		return nil, ErrReferralNotFound
	}
	return tracking, nil
}

func (s *InMemoryStore) InsertCommission(ctx context.Context, entry *models.CommissionLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.commissions = append(s.commissions, entry)
	return nil
}

// Commissions returns all commission entries. Test helper.
func (s *InMemoryStore) Commissions() []*models.CommissionLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.CommissionLedgerEntry(nil), s.commissions...)
}

// PutRewardItem seeds a reward item. Test helper.
func (s *InMemoryStore) PutRewardItem(item *models.RewardItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards[item.ID] = item
}

func (s *InMemoryStore) GetRewardItem(ctx context.Context, projectID, rewardItemID string) (*models.RewardItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.rewards[rewardItemID]
	if !ok || item.ProjectID != projectID {
		return nil, ErrRewardNotFound
	}
	return item, nil
}

func (s *InMemoryStore) Redeem(ctx context.Context, endUserID string, item *models.RewardItem) (*models.RedemptionTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[endUserID]
	if !ok || user.LoyaltyPoints < item.PointCost {
		return nil, ErrInsufficientPoints
	}

	stored, ok := s.rewards[item.ID]
	if !ok {
		return nil, ErrRewardNotFound
	}
	if stored.StockQuantity <= 0 {
		return nil, ErrOutOfStock
	}

	// All preconditions hold; apply the three writes together.
	redemption := &models.RedemptionTransaction{
		ID:           uuid.NewString(),
		EndUserID:    endUserID,
		RewardItemID: item.ID,
		PointCost:    item.PointCost,
		CreatedAt:    time.Now().UTC(),
	}
	s.appendLedgerLocked(user, -item.PointCost, models.LedgerTypeRedemption, redemption.ID, "redemption")
	stored.StockQuantity--
	s.redemptions = append(s.redemptions, redemption)
	return redemption, nil
}

// Redemptions returns all redemption transactions. Test helper.
func (s *InMemoryStore) Redemptions() []*models.RedemptionTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.RedemptionTransaction(nil), s.redemptions...)
}

func (s *InMemoryStore) MarkStuck(ctx context.Context, stuck *models.StuckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stuck.ID == "" {
		stuck.ID = uuid.NewString()
	}
	if stuck.CreatedAt.IsZero() {
		stuck.CreatedAt = time.Now().UTC()
	}
	s.stuckEvents[stuck.ID] = stuck
	return nil
}

func (s *InMemoryStore) ListStuck(ctx context.Context, limit int) ([]*models.StuckEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.StuckEvent
	for _, stuck := range s.stuckEvents {
		if stuck.ResolvedAt.IsZero() {
			out = append(out, stuck)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ResolveStuck(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stuck, ok := s.stuckEvents[id]; ok {
		stuck.ResolvedAt = time.Now().UTC()
	}
	return nil
}

func (s *InMemoryStore) IncrementStuckRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stuck, ok := s.stuckEvents[id]; ok {
		stuck.RetryCount++
	}
	return nil
}
