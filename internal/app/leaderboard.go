package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Aggregate ranks participants by score, highest first. Ties go to whoever joined
// first. The result depends only on the records passed in, so the same input always
// yields the same snapshot.
func Aggregate(participants []domain.Participant) []domain.LeaderboardEntry {
	ranked := make([]domain.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].JoinSeq != ranked[j].JoinSeq {
			return ranked[i].JoinSeq < ranked[j].JoinSeq
		}
		return ranked[i].ID < ranked[j].ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
			AnsweredCount: len(p.Answers),
			CorrectCount:  p.CorrectCount(),
		})
	}
	return entries
}

// countConnected summarizes the connected participants in join order.
func countConnected(participants []domain.Participant) domain.ParticipantCount {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.Connected {
			names = append(names, p.Name)
		}
	}
	return domain.ParticipantCount{Count: len(names), Names: names}
}
