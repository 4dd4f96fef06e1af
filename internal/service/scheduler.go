package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/notify"
	"github.com/set-night/rewardmarket/internal/repository"
)

// SchedulerService computes which task a user sees next in each category,
// under cooldown, country, version and ad-hoc-window constraints.
type SchedulerService struct {
	store    repository.Store
	notifier notify.Dispatcher
	policy   domain.SchedulerPolicy
}

func NewSchedulerService(store repository.Store, notifier notify.Dispatcher, policy domain.SchedulerPolicy) *SchedulerService {
	return &SchedulerService{store: store, notifier: notifier, policy: policy}
}

// NextTask is the scheduling answer for one category. Task is nil when
// nothing is available; UpgradeRequired means a task exists but the client is
// too old to run it.
type NextTask struct {
	Task            *domain.Task
	UpgradeRequired bool
	AvailableAt     time.Time
}

// NextTasks answers for every requested category. A category whose state
// cannot be evaluated yields "no task", never an error: a broken category must
// not take down the whole response.
func (s *SchedulerService) NextTasks(ctx context.Context, userID string, categoryIDs []string) (map[string]NextTask, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make(map[string]NextTask, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		nt, err := s.nextForCategory(ctx, user, categoryID, now)
		if err != nil {
			slog.Error("category scheduling failed", "category", categoryID, "user", userID, "error", err)
			out[categoryID] = NextTask{}
			continue
		}
		out[categoryID] = nt
	}
	return out, nil
}

// nextForCategory builds a per-request snapshot (one tasks read, one progress
// read) and walks the candidates in scheduling order.
func (s *SchedulerService) nextForCategory(ctx context.Context, user *domain.User, categoryID string, now time.Time) (NextTask, error) {
	tasks, err := s.store.TasksByCategory(ctx, categoryID)
	if err != nil {
		return NextTask{}, fmt.Errorf("load tasks: %w", err)
	}
	progress, err := s.store.GetProgress(ctx, user.ID, categoryID)
	if err != nil {
		return NextTask{}, fmt.Errorf("load progress: %w", err)
	}

	for _, t := range remainingTasks(tasks, progress) {
		if t.AdHoc() && !t.WindowContains(now) {
			continue
		}
		if t.ExcludesCountry(user.CountryCode) {
			continue
		}
		if s.policy.TypeBlocked(user.Platform, t.Type) {
			continue
		}
		if !s.policy.SkipVersionGate && t.RequiresUpgrade(user.Platform, user.ClientVersion) {
			s.emitUpgradeNotice(ctx, user, categoryID)
			return NextTask{UpgradeRequired: true}, nil
		}

		availableAt := progress.NextEligibleAt
		if availableAt.Before(now) {
			availableAt = now
		}
		return NextTask{Task: t, AvailableAt: availableAt}, nil
	}
	return NextTask{}, nil
}

// RecordSubmission appends the task to the user's completed set and moves the
// cooldown fence based on the *following* task's delay_days.
func (s *SchedulerService) RecordSubmission(ctx context.Context, userID, taskID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	tasks, err := s.store.TasksByCategory(ctx, task.CategoryID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	progress, err := s.store.GetProgress(ctx, userID, task.CategoryID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}

	delayDays := 0
	for _, t := range remainingTasks(tasks, progress) {
		if t.ID == taskID {
			continue
		}
		delayDays = t.DelayDays
		break
	}

	nextEligibleAt := CooldownEnd(time.Now(), delayDays, user.Location())
	return s.store.RecordCompletion(ctx, userID, task.CategoryID, taskID, nextEligibleAt)
}

// CountImmediateTasks counts how many tasks the user could run back to back
// right now: the head task plus every consecutive follower with a zero delay.
func (s *SchedulerService) CountImmediateTasks(ctx context.Context, userID, categoryID string) (int, error) {
	tasks, err := s.store.TasksByCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}
	progress, err := s.store.GetProgress(ctx, userID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}

	remaining := remainingTasks(tasks, progress)
	if len(remaining) == 0 {
		return 0, nil
	}
	count := 1
	for _, t := range remaining[1:] {
		if t.DelayDays != 0 {
			break
		}
		count++
	}
	return count, nil
}

// emitUpgradeNotice tells the user their client is too old, at most once per
// notice window: the lease is deliberately never released so it gates until
// its TTL lapses.
func (s *SchedulerService) emitUpgradeNotice(ctx context.Context, user *domain.User, categoryID string) {
	if user.DeviceToken == "" {
		return
	}
	key := "upgrade:" + user.ID + ":" + categoryID
	acquired, err := s.store.AcquireLease(ctx, key, config.UpgradeNoticeTTL)
	if err != nil {
		slog.Error("upgrade notice lease failed", "user", user.ID, "error", err)
		return
	}
	if !acquired {
		return
	}
	s.notifier.Send(ctx, user.DeviceToken, notify.Payload{
		Title: "Update required",
		Body:  "New tasks are waiting, but they need a newer app version.",
	})
}

// remainingTasks orders the category's tasks by (position, start_date, id) and
// drops the ones already completed. Ad-hoc tasks carry position -1, so an open
// window pushes them ahead of every fixed slot; id is the tie-break between
// ad-hoc tasks sharing a start date.
func remainingTasks(tasks []*domain.Task, progress *domain.CategoryProgress) []*domain.Task {
	ordered := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !progress.Completed(t.ID) {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		as, bs := startOrZero(a), startOrZero(b)
		if !as.Equal(bs) {
			return as.Before(bs)
		}
		return a.ID < b.ID
	})
	return ordered
}

func startOrZero(t *domain.Task) time.Time {
	if t.StartDate == nil {
		return time.Time{}
	}
	return *t.StartDate
}

// CooldownEnd returns the moment the user becomes eligible again: immediately
// for a zero delay, otherwise the delayDays-th midnight in the user's stored
// timezone counted from now.
func CooldownEnd(now time.Time, delayDays int, loc *time.Location) time.Time {
	if delayDays <= 0 {
		return now
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, delayDays)
}
