package domain

// SchedulerPolicy is passed into the scheduler explicitly instead of a
// process-global debug toggle. BlacklistedTypes hides whole task types on a
// platform (e.g. video tasks the store review rejects).
type SchedulerPolicy struct {
	SkipVersionGate  bool
	BlacklistedTypes map[Platform][]string
}

func (p SchedulerPolicy) TypeBlocked(platform Platform, taskType string) bool {
	for _, t := range p.BlacklistedTypes[platform] {
		if t == taskType {
			return true
		}
	}
	return false
}
