package app

import (
	"math"
	"sort"
	"time"

	"history-ranking-service/internal/domain"
)

// percentage rounds correct/total to an integer percentage.
func percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) * 100 / float64(total)))
}

// memberAttempts drops records whose question is not part of set.
func memberAttempts(attempts []domain.AttemptRecord, set domain.QuestionSet) []domain.AttemptRecord {
	members := make(map[domain.QuestionID]struct{}, set.TotalCount())
	for _, id := range set.QuestionIDs() {
		members[id] = struct{}{}
	}
	kept := make([]domain.AttemptRecord, 0, len(attempts))
	for _, a := range attempts {
		if _, ok := members[a.QuestionID]; ok && a.UserID != "" {
			kept = append(kept, a)
		}
	}
	return kept
}

func attemptsSince(attempts []domain.AttemptRecord, since time.Time) []domain.AttemptRecord {
	kept := make([]domain.AttemptRecord, 0, len(attempts))
	for _, a := range attempts {
		if !a.CreatedAt.Before(since) {
			kept = append(kept, a)
		}
	}
	return kept
}

// summarize groups attempts by user.
func summarize(attempts []domain.AttemptRecord) map[domain.AccountID]*domain.ParticipantSummary {
	groups := make(map[domain.AccountID]*domain.ParticipantSummary)
	for _, a := range attempts {
		summary, ok := groups[a.UserID]
		if !ok {
			summary = &domain.ParticipantSummary{UserID: a.UserID, EarliestAt: a.CreatedAt}
			groups[a.UserID] = summary
		}
		summary.AttemptedCount++
		if a.Correct {
			summary.CorrectCount++
		}
		if a.CreatedAt.Before(summary.EarliestAt) {
			summary.EarliestAt = a.CreatedAt
		}
	}
	return groups
}

// completedParticipants keeps users whose attempt count equals the question count exactly.
// Replays push the count past total and drop the user; see DESIGN.md.
func completedParticipants(groups map[domain.AccountID]*domain.ParticipantSummary, total int) []domain.ParticipantSummary {
	kept := make([]domain.ParticipantSummary, 0, len(groups))
	for _, summary := range groups {
		if summary.AttemptedCount == total {
			kept = append(kept, *summary)
		}
	}
	return kept
}

// rankParticipants orders summaries and assigns dense 1-based ranks.
// Order: percentage desc, earliest attempt asc, then account id.
func rankParticipants(summaries []domain.ParticipantSummary, total int, viewer *domain.AccountID) []domain.RankedEntry {
	sort.Slice(summaries, func(i, j int) bool {
		pi := percentage(summaries[i].CorrectCount, total)
		pj := percentage(summaries[j].CorrectCount, total)
		if pi != pj {
			return pi > pj
		}
		if !summaries[i].EarliestAt.Equal(summaries[j].EarliestAt) {
			return summaries[i].EarliestAt.Before(summaries[j].EarliestAt)
		}
		return summaries[i].UserID < summaries[j].UserID
	})

	entries := make([]domain.RankedEntry, 0, len(summaries))
	for i := range summaries {
		summaries[i].IsViewer = viewer != nil && summaries[i].UserID == *viewer
		summary := summaries[i]
		entries = append(entries, domain.RankedEntry{
			Rank:           i + 1,
			UserID:         summary.UserID,
			DisplayName:    summary.DisplayName,
			CorrectCount:   summary.CorrectCount,
			TotalQuestions: total,
			Percentage:     percentage(summary.CorrectCount, total),
			IsViewer:       summary.IsViewer,
		})
	}
	return entries
}

// limitEntries keeps the top limit entries; the viewer's entry is appended when it falls below the cut.
func limitEntries(entries []domain.RankedEntry, limit int) []domain.RankedEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	top := make([]domain.RankedEntry, limit, limit+1)
	copy(top, entries[:limit])
	for _, e := range entries[limit:] {
		if e.IsViewer {
			top = append(top, e)
			break
		}
	}
	return top
}

// viewerStats derives the viewer's personal numbers from all of their attempts, completed or not.
// Attempts are ordered by time and cut into passes of total; a trailing partial pass is ignored.
func viewerStats(attempts []domain.AttemptRecord, viewer domain.AccountID, total int) *domain.ViewerStats {
	own := make([]domain.AttemptRecord, 0)
	for _, a := range attempts {
		if a.UserID == viewer {
			own = append(own, a)
		}
	}
	stats := &domain.ViewerStats{}
	if total <= 0 || len(own) == 0 {
		return stats
	}

	sort.Slice(own, func(i, j int) bool {
		if !own[i].CreatedAt.Equal(own[j].CreatedAt) {
			return own[i].CreatedAt.Before(own[j].CreatedAt)
		}
		return own[i].ID < own[j].ID
	})

	stats.PlayCount = len(own) / total
	for pass := 0; pass < stats.PlayCount; pass++ {
		correct := 0
		for _, a := range own[pass*total : (pass+1)*total] {
			if a.Correct {
				correct++
			}
		}
		if p := percentage(correct, total); p > stats.BestPercentage {
			stats.BestPercentage = p
		}
	}
	return stats
}
