package domain

type HelperTag string

const (
	HelperNewcomer HelperTag = "newcomer"
	HelperWarm     HelperTag = "warm"
	HelperReliable HelperTag = "reliable"
)

// TaskUserStats is derived from task counts on every read, never stored.
type TaskUserStats struct {
	PublishedCount          int       `json:"publishedCount"`
	PublishedCompletedCount int       `json:"publishedCompletedCount"`
	AcceptedCount           int       `json:"acceptedCount"`
	AcceptedCompletedCount  int       `json:"acceptedCompletedCount"`
	GoodRate                int       `json:"goodRate"`
	CreditStars             int       `json:"creditStars"`
	HelperTag               HelperTag `json:"helperTag"`
}

func BuildTaskUserStats(published, accepted []Task) TaskUserStats {
	s := TaskUserStats{
		PublishedCount: len(published),
		AcceptedCount:  len(accepted),
	}
	for _, t := range published {
		if t.Status == TaskCompleted {
			s.PublishedCompletedCount++
		}
	}
	for _, t := range accepted {
		if t.Status == TaskCompleted {
			s.AcceptedCompletedCount++
		}
	}

	stars := 3 + (s.PublishedCompletedCount+s.AcceptedCompletedCount)/5
	if stars > 5 {
		stars = 5
	}
	s.CreditStars = stars

	s.GoodRate = 100
	if s.AcceptedCount > 0 {
		s.GoodRate = (s.AcceptedCompletedCount*200 + s.AcceptedCount) / (2 * s.AcceptedCount)
	}

	switch {
	case s.AcceptedCompletedCount >= 10:
		s.HelperTag = HelperReliable
	case s.AcceptedCompletedCount >= 3:
		s.HelperTag = HelperWarm
	default:
		s.HelperTag = HelperNewcomer
	}
	return s
}
