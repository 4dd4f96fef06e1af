package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AdHocPosition marks a task that has no fixed slot in its category and is
// gated by a [StartDate, ExpirationDate) window instead.
const AdHocPosition = -1

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

type ItemKind string

const (
	ItemKindQuestion ItemKind = "question"
	ItemKindQuiz     ItemKind = "quiz"
	ItemKindTip      ItemKind = "tip"
)

// TaskItem is one sub-item of a task. Quiz items carry a correct answer id and
// a reward granted when the submitted answer matches; a trailing tip item lets
// the user give part of the reward back.
type TaskItem struct {
	ID              string          `json:"id"`
	Kind            ItemKind        `json:"kind"`
	CorrectAnswerID string          `json:"correct_answer_id,omitempty"`
	QuizReward      decimal.Decimal `json:"quiz_reward,omitempty"`
}

type Task struct {
	ID                string
	CategoryID        string
	Title             string
	Type              string
	Position          int // >= 0 fixed slot, AdHocPosition for windowed tasks
	Price             decimal.Decimal
	DelayDays         int
	MinVersion        map[Platform]string
	ExcludedCountries []string
	StartDate         *time.Time
	ExpirationDate    *time.Time
	Items             []TaskItem
	CreatedAt         time.Time
}

func (t *Task) AdHoc() bool {
	return t.Position == AdHocPosition
}

// WindowContains reports whether now falls inside [StartDate, ExpirationDate).
// Non ad-hoc tasks have no window and are always inside.
func (t *Task) WindowContains(now time.Time) bool {
	if !t.AdHoc() {
		return true
	}
	if t.StartDate == nil || t.ExpirationDate == nil {
		return false
	}
	return !now.Before(*t.StartDate) && now.Before(*t.ExpirationDate)
}

func (t *Task) ExcludesCountry(code string) bool {
	for _, c := range t.ExcludedCountries {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// RequiresUpgrade reports whether the task demands a newer client than the
// user is running on the given platform.
func (t *Task) RequiresUpgrade(platform Platform, clientVersion string) bool {
	min, ok := t.MinVersion[platform]
	if !ok || min == "" {
		return false
	}
	return CompareVersions(clientVersion, min) < 0
}

type Category struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// CategoryProgress is a user's per-category state: the ordered set of task ids
// already submitted and the moment before which new submissions are rejected.
type CategoryProgress struct {
	UserID           string
	CategoryID       string
	CompletedTaskIDs []string
	NextEligibleAt   time.Time
}

func (p *CategoryProgress) Completed(taskID string) bool {
	for _, id := range p.CompletedTaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// CompareVersions compares dotted numeric version strings ("1.4.2").
// Missing segments count as zero; non-numeric segments compare as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
