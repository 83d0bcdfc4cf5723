package tui

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/finestructure/historyview/internal/history"
)

const containsBonus = 1 << 20

// nearestLabel returns the id of the step whose label best matches query.
// Labels containing the query win over edit distance; ties go to the newest step.
func nearestLabel(steps []history.Step, query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(steps) == 0 {
		return "", false
	}
	bestID := ""
	bestScore := 0
	for i := len(steps) - 1; i >= 0; i-- {
		label := strings.ToLower(strings.TrimSpace(steps[i].Label))
		score := levenshtein.ComputeDistance(q, label)
		if strings.Contains(label, q) {
			score = len(label) - containsBonus
		}
		if bestID == "" || score < bestScore {
			bestID, bestScore = steps[i].ID, score
		}
	}
	return bestID, true
}
