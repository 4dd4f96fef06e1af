package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/ledger"
	"github.com/set-night/rewardmarket/internal/metrics"
	"github.com/set-night/rewardmarket/internal/notify"
	"github.com/set-night/rewardmarket/internal/repository"
)

// DisburseService pays users for completed task results, at most once per
// (user, task) across all identities sharing a verified phone number.
type DisburseService struct {
	store    repository.Store
	ledger   ledger.Client
	notifier notify.Dispatcher

	payTimeout time.Duration
	inflight   sync.WaitGroup
}

func NewDisburseService(store repository.Store, lc ledger.Client, notifier notify.Dispatcher) *DisburseService {
	return &DisburseService{
		store:      store,
		ledger:     lc,
		notifier:   notifier,
		payTimeout: config.DisburseLockTTL,
	}
}

// Disburse stores the results and kicks off the reward payment. The memo is
// returned immediately; the payment itself runs in the background, but the
// per-(user, task) lease stays held until the attempt's outcome is recorded.
// Resubmission of an already-paid task returns the original memo with
// already=true and pays nothing.
func (s *DisburseService) Disburse(ctx context.Context, userID, taskID string, answers []domain.ItemAnswer, address string) (memo string, already bool, err error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return "", false, err
	}

	linked := []string{userID}
	if user.PhoneHash != nil {
		linked, err = s.store.UserIDsByPhoneHash(ctx, *user.PhoneHash)
		if err != nil {
			return "", false, fmt.Errorf("linked identities: %w", err)
		}
	}
	if prior, err := s.store.GetPayoutByUsers(ctx, linked, taskID); err != nil {
		return "", false, fmt.Errorf("check payout: %w", err)
	} else if prior != nil {
		return prior.Memo, true, nil
	}

	// Submissions inside the category cooldown are rejected outright;
	// clients learn the next eligible moment from the scheduler.
	progress, err := s.store.GetProgress(ctx, userID, task.CategoryID)
	if err != nil {
		return "", false, fmt.Errorf("check cooldown: %w", err)
	}
	if now := time.Now(); now.Before(progress.NextEligibleAt) {
		return "", false, fmt.Errorf("%w: eligible at %s", domain.ErrNotEligible, progress.NextEligibleAt.Format(time.RFC3339))
	}

	// Results storage commits first and is never rolled back: at-least-once
	// storage, at-most-once-intended payment. A stored result with no ledger
	// row is reconciled by ledger-absence detection.
	if err := s.store.InsertResult(ctx, &domain.TaskResult{
		ID:      uuid.New().String(),
		UserID:  userID,
		TaskID:  taskID,
		Answers: answers,
	}); err != nil {
		return "", false, fmt.Errorf("store results: %w", err)
	}

	amount, err := RewardAmount(task, answers)
	if err != nil {
		return "", false, err
	}

	lockKey := "disburse:" + userID + ":" + taskID
	acquired, err := s.store.AcquireLease(ctx, lockKey, config.DisburseLockTTL)
	if err != nil {
		return "", false, fmt.Errorf("acquire disburse lease: %w", err)
	}
	if !acquired {
		return "", false, domain.ErrAlreadyCompensating
	}

	memo = NewMemo()
	if err := s.store.InsertPayout(ctx, &domain.Payout{
		UserID: userID,
		TaskID: taskID,
		Memo:   memo,
		Amount: amount,
	}); err != nil {
		_ = s.store.ReleaseLease(context.WithoutCancel(ctx), lockKey)
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			// Raced another submission past the check above; hand back its memo.
			if prior, perr := s.store.GetPayoutByUsers(ctx, linked, taskID); perr == nil && prior != nil {
				return prior.Memo, true, nil
			}
		}
		return "", false, fmt.Errorf("record payout: %w", err)
	}

	s.inflight.Add(1)
	go s.pay(user, taskID, address, amount, memo, lockKey)
	return memo, false, nil
}

// pay performs the actual ledger payment. The deferred lease release runs
// after the outcome has been recorded, on every exit path including panics.
func (s *DisburseService) pay(user *domain.User, taskID, address string, amount decimal.Decimal, memo, lockKey string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.payTimeout)
	defer cancel()
	defer func() {
		if err := s.store.ReleaseLease(ctx, lockKey); err != nil {
			slog.Error("release disburse lease failed", "key", lockKey, "error", err)
		}
	}()

	txHash, err := s.ledger.Pay(ctx, address, amount, memo)
	if err != nil {
		// The payout row already holds the memo; a missing ledger row for it
		// is what reconciliation looks for.
		slog.Error("reward payment failed", "user", user.ID, "task", taskID, "memo", memo, "error", err)
		s.count("failed")
		return
	}

	if err := s.store.InsertTransaction(ctx, &domain.Transaction{
		Hash:      txHash,
		UserID:    user.ID,
		Amount:    amount,
		Direction: domain.TxOutgoing,
		TaskID:    taskID,
		Memo:      memo,
	}); err != nil {
		slog.Error("record reward transaction failed", "tx_hash", txHash, "error", err)
	}
	if err := s.store.SetPayoutTxHash(ctx, user.ID, taskID, txHash); err != nil {
		slog.Error("stamp payout tx hash failed", "user", user.ID, "task", taskID, "error", err)
	}

	if user.DeviceToken != "" {
		s.notifier.Send(ctx, user.DeviceToken, notify.Payload{
			Title: "Reward sent",
			Body:  fmt.Sprintf("You earned %s for completing a task.", amount),
		})
	}
	s.count("paid")
	slog.Info("reward disbursed", "user", user.ID, "task", taskID, "amount", amount, "tx_hash", txHash)
}

// Wait blocks until every in-flight payment goroutine has finished. Used on
// shutdown and by tests.
func (s *DisburseService) Wait() {
	s.inflight.Wait()
}

// RewardAmount computes price + quiz bonuses − tip. An answer that should be
// numeric but is not makes the amount undeterminable, which is a fatal error:
// paying zero instead would silently swallow the user's reward.
func RewardAmount(task *domain.Task, answers []domain.ItemAnswer) (decimal.Decimal, error) {
	byItem := make(map[string]string, len(answers))
	for _, a := range answers {
		byItem[a.ItemID] = a.AnswerID
	}

	amount := task.Price
	for _, item := range task.Items {
		switch item.Kind {
		case domain.ItemKindQuiz:
			if byItem[item.ID] == item.CorrectAnswerID && item.CorrectAnswerID != "" {
				amount = amount.Add(item.QuizReward)
			}
		case domain.ItemKindTip:
			answer, ok := byItem[item.ID]
			if !ok || answer == "" {
				continue
			}
			tip, err := decimal.NewFromString(answer)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%w: bad tip value %q", domain.ErrRewardUndetermined, answer)
			}
			if tip.IsNegative() {
				return decimal.Zero, fmt.Errorf("%w: negative tip", domain.ErrRewardUndetermined)
			}
			amount = amount.Sub(tip)
		}
	}

	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: computed amount is negative", domain.ErrRewardUndetermined)
	}
	return amount, nil
}

func (s *DisburseService) count(result string) {
	if metrics.Registered {
		metrics.Payouts.WithLabelValues(result).Inc()
	}
}
