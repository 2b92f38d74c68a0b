package structured

import (
	"regexp"
	"strings"

	"digital-dean/internal/models"

	"github.com/tidwall/gjson"
)

var (
	gradeLineRe     = regexp.MustCompile(`(?i)\**\s*GRADE\s*\**\s*:\s*\**\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*10\b\**`)
	critiqueLabelRe = regexp.MustCompile(`(?i)^[#*\s]*critique\s*\**\s*:?\s*\**\s*`)
)

// ParseGrade reads a grading reply. It accepts a {"score", "feedback"} object or the
// narrative "GRADE: X/10" line followed by a critique.
func ParseGrade(raw string) (*models.GradingResult, error) {
	if obj, err := ExtractJSON(raw, Object); err == nil {
		score := gjson.GetBytes(obj, "score")
		if score.Exists() && strings.TrimSpace(score.String()) != "" {
			return &models.GradingResult{
				Score:    normalizeScore(score.String()),
				Feedback: strings.TrimSpace(gjson.GetBytes(obj, "feedback").String()),
			}, nil
		}
	}

	loc := gradeLineRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return nil, &models.MalformedOutputError{Raw: raw}
	}
	score := raw[loc[2]:loc[3]] + "/10"
	feedback := strings.TrimSpace(raw[loc[1]:])
	feedback = strings.TrimSpace(critiqueLabelRe.ReplaceAllString(feedback, ""))
	if feedback == "" {
		// critique written before the grade line
		feedback = strings.TrimSpace(raw[:loc[0]])
	}
	return &models.GradingResult{Score: score, Feedback: feedback}, nil
}

// normalizeScore turns a bare number into "X/10"
func normalizeScore(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		return strings.ReplaceAll(s, " ", "")
	}
	return s + "/10"
}
