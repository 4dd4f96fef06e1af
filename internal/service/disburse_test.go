package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/notify"
	"github.com/set-night/rewardmarket/internal/repository/memstore"
)

func newRewardTask(t *testing.T, store *memstore.Store) *domain.Task {
	t.Helper()
	task := fixedTask("reward-task", "cat", 0, 0)
	task.Items = []domain.TaskItem{
		{ID: "q1", Kind: domain.ItemKindQuestion},
		{ID: "quiz1", Kind: domain.ItemKindQuiz, CorrectAnswerID: "opt-b", QuizReward: decimal.NewFromInt(5)},
		{ID: "tip1", Kind: domain.ItemKindTip},
	}
	mustCreateTasks(t, store, task)
	return task
}

func TestDisbursePaysOncePerUserTask(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	disburser := NewDisburseService(store, fl, notify.Noop{})
	user := newTestUser(t, store, nil)
	task := newRewardTask(t, store)

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "anything"}}
	memo, already, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if already || memo == "" {
		t.Fatalf("first submission must mint a memo, got memo=%q already=%v", memo, already)
	}
	if len(memo) > config.MemoMaxLen {
		t.Fatalf("memo %q exceeds %d chars", memo, config.MemoMaxLen)
	}
	disburser.Wait()

	paid := fl.payments()
	if len(paid) != 1 {
		t.Fatalf("expected one payment, got %d", len(paid))
	}
	if paid[0].Memo != memo || paid[0].Address != user.WalletAddress || !paid[0].Amount.Equal(task.Price) {
		t.Fatalf("payment does not match payout: %+v", paid[0])
	}

	payout, err := store.GetPayoutByUsers(context.Background(), []string{user.ID}, task.ID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout == nil || payout.TxHash == nil {
		t.Fatalf("payout must carry the ledger hash after payment, got %+v", payout)
	}
	txns, err := store.TransactionsByUserTask(context.Background(), user.ID, task.ID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 1 || txns[0].Direction != domain.TxOutgoing || txns[0].Memo != memo {
		t.Fatalf("expected one outgoing ledger row with the memo, got %+v", txns)
	}

	// Resubmission hands back the original memo and pays nothing.
	memo2, already, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !already || memo2 != memo {
		t.Fatalf("expected original memo with already=true, got memo=%q already=%v", memo2, already)
	}
	disburser.Wait()
	if len(fl.payments()) != 1 {
		t.Fatalf("resubmission must not pay again, got %d payments", len(fl.payments()))
	}
}

func TestDisburseDeduplicatesLinkedIdentities(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	disburser := NewDisburseService(store, fl, notify.Noop{})
	task := newRewardTask(t, store)

	phone := "phone-hash-1"
	first := newTestUser(t, store, func(u *domain.User) { u.PhoneHash = &phone })
	second := newTestUser(t, store, func(u *domain.User) { u.PhoneHash = &phone })

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "ok"}}
	memo, already, err := disburser.Disburse(context.Background(), first.ID, task.ID, answers, first.WalletAddress)
	if err != nil || already {
		t.Fatalf("first identity: memo=%q already=%v err=%v", memo, already, err)
	}
	disburser.Wait()

	memo2, already, err := disburser.Disburse(context.Background(), second.ID, task.ID, answers, second.WalletAddress)
	if err != nil {
		t.Fatalf("second identity: %v", err)
	}
	if !already || memo2 != memo {
		t.Fatalf("linked identity must see the prior payout, got memo=%q already=%v", memo2, already)
	}
	if len(fl.payments()) != 1 {
		t.Fatalf("linked identities paid twice: %d payments", len(fl.payments()))
	}
}

func TestDisburseQuizAndTipAdjustAmount(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	disburser := NewDisburseService(store, fl, notify.Noop{})
	user := newTestUser(t, store, nil)
	task := newRewardTask(t, store)

	answers := []domain.ItemAnswer{
		{ItemID: "quiz1", AnswerID: "opt-b"},
		{ItemID: "tip1", AnswerID: "3"},
	}
	if _, _, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	disburser.Wait()

	paid := fl.payments()
	if len(paid) != 1 {
		t.Fatalf("expected one payment, got %d", len(paid))
	}
	// price 10 + quiz 5 - tip 3
	if want := decimal.NewFromInt(12); !paid[0].Amount.Equal(want) {
		t.Fatalf("expected %s, got %s", want, paid[0].Amount)
	}
}

func TestRewardAmount(t *testing.T) {
	task := &domain.Task{
		Price: decimal.NewFromInt(10),
		Items: []domain.TaskItem{
			{ID: "quiz1", Kind: domain.ItemKindQuiz, CorrectAnswerID: "opt-b", QuizReward: decimal.NewFromInt(5)},
			{ID: "tip1", Kind: domain.ItemKindTip},
		},
	}

	cases := []struct {
		name    string
		answers []domain.ItemAnswer
		want    decimal.Decimal
		wantErr bool
	}{
		{"base price only", nil, decimal.NewFromInt(10), false},
		{"wrong quiz answer", []domain.ItemAnswer{{ItemID: "quiz1", AnswerID: "opt-a"}}, decimal.NewFromInt(10), false},
		{"correct quiz answer", []domain.ItemAnswer{{ItemID: "quiz1", AnswerID: "opt-b"}}, decimal.NewFromInt(15), false},
		{"tip subtracted", []domain.ItemAnswer{{ItemID: "tip1", AnswerID: "2.5"}}, decimal.NewFromFloat(7.5), false},
		{"empty tip ignored", []domain.ItemAnswer{{ItemID: "tip1", AnswerID: ""}}, decimal.NewFromInt(10), false},
		{"bad tip", []domain.ItemAnswer{{ItemID: "tip1", AnswerID: "lots"}}, decimal.Zero, true},
		{"negative tip", []domain.ItemAnswer{{ItemID: "tip1", AnswerID: "-1"}}, decimal.Zero, true},
		{"tip above total", []domain.ItemAnswer{{ItemID: "tip1", AnswerID: "11"}}, decimal.Zero, true},
	}
	for _, c := range cases {
		got, err := RewardAmount(task, c.answers)
		if c.wantErr {
			if !errors.Is(err, domain.ErrRewardUndetermined) {
				t.Fatalf("%s: expected ErrRewardUndetermined, got %v", c.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestDisburseFailedPaymentReleasesLeaseAndKeepsMemo(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	fl.payErr = errors.New("horizon is down")
	disburser := NewDisburseService(store, fl, notify.Noop{})
	user := newTestUser(t, store, nil)
	task := newRewardTask(t, store)

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "ok"}}
	memo, already, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress)
	if err != nil || already {
		t.Fatalf("disburse: memo=%q already=%v err=%v", memo, already, err)
	}
	disburser.Wait()

	// The outcome is recorded before the lease goes: payout row without a
	// ledger hash, no transaction row, lock free again.
	payout, err := store.GetPayoutByUsers(context.Background(), []string{user.ID}, task.ID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout == nil || payout.TxHash != nil {
		t.Fatalf("failed payment must leave an unhashed payout, got %+v", payout)
	}
	txns, err := store.TransactionsByUserTask(context.Background(), user.ID, task.ID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("failed payment must not write a ledger row, got %d", len(txns))
	}
	lockKey := "disburse:" + user.ID + ":" + task.ID
	if ok, err := store.AcquireLease(context.Background(), lockKey, config.DisburseLockTTL); err != nil || !ok {
		t.Fatalf("lease must be free after the attempt, ok=%v err=%v", ok, err)
	}

	// Resubmission sees the payout record and does not retry the payment
	// by itself; reconciliation owns that.
	memo2, already, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress)
	if err != nil || !already || memo2 != memo {
		t.Fatalf("expected prior memo, got memo=%q already=%v err=%v", memo2, already, err)
	}
}

func TestDisburseRejectsSubmissionDuringCooldown(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	disburser := NewDisburseService(store, fl, notify.Noop{})
	sched := NewSchedulerService(store, notify.Noop{}, domain.SchedulerPolicy{})
	user := newTestUser(t, store, nil)
	mustCreateTasks(t, store,
		fixedTask("t0", "cat", 0, 0),
		fixedTask("t1", "cat", 1, 2),
	)

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "ok"}}
	memo, _, err := disburser.Disburse(context.Background(), user.ID, "t0", answers, user.WalletAddress)
	if err != nil {
		t.Fatalf("disburse t0: %v", err)
	}
	if err := sched.RecordSubmission(context.Background(), user.ID, "t0"); err != nil {
		t.Fatalf("record submission: %v", err)
	}
	disburser.Wait()

	// t1 carries a two-day delay, so its fence is armed well past now.
	progress, err := store.GetProgress(context.Background(), user.ID, "cat")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if !progress.NextEligibleAt.After(time.Now()) {
		t.Fatalf("expected an armed cooldown fence, got %v", progress.NextEligibleAt)
	}

	if _, _, err := disburser.Disburse(context.Background(), user.ID, "t1", answers, user.WalletAddress); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible during cooldown, got %v", err)
	}
	disburser.Wait()
	if len(fl.payments()) != 1 {
		t.Fatalf("cooldown submission must not be paid, got %d payments", len(fl.payments()))
	}

	// Resubmitting the already-paid task still hands back its memo.
	memo2, already, err := disburser.Disburse(context.Background(), user.ID, "t0", answers, user.WalletAddress)
	if err != nil || !already || memo2 != memo {
		t.Fatalf("expected prior memo during cooldown, got memo=%q already=%v err=%v", memo2, already, err)
	}
}

func TestDisburseHeldLeaseRejectsSubmission(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	disburser := NewDisburseService(store, fl, notify.Noop{})
	user := newTestUser(t, store, nil)
	task := newRewardTask(t, store)

	lockKey := "disburse:" + user.ID + ":" + task.ID
	if ok, err := store.AcquireLease(context.Background(), lockKey, config.DisburseLockTTL); err != nil || !ok {
		t.Fatalf("acquire lease: ok=%v err=%v", ok, err)
	}

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "ok"}}
	if _, _, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress); !errors.Is(err, domain.ErrAlreadyCompensating) {
		t.Fatalf("expected ErrAlreadyCompensating, got %v", err)
	}
}

func TestDisburseNotifiesOnPayment(t *testing.T) {
	store := memstore.New()
	fl := newFakeLedger()
	notifier := &captureNotifier{}
	disburser := NewDisburseService(store, fl, notifier)
	user := newTestUser(t, store, nil)
	task := newRewardTask(t, store)

	answers := []domain.ItemAnswer{{ItemID: "q1", AnswerID: "ok"}}
	if _, _, err := disburser.Disburse(context.Background(), user.ID, task.ID, answers, user.WalletAddress); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	disburser.Wait()

	if notifier.count() != 1 {
		t.Fatalf("expected one reward notification, got %d", notifier.count())
	}
}
