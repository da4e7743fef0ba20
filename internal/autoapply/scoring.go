package autoapply

import (
	"math"
	"slices"
	"strings"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// Weights are the maximum points each criterion contributes to a match score.
// An unconfigured criterion contributes half its weight.
type Weights struct {
	Keywords float64 `yaml:"keywords"`
	Location float64 `yaml:"location"`
	Industry float64 `yaml:"industry"`
	JobType  float64 `yaml:"job_type"`
}

func DefaultWeights() Weights {
	return Weights{Keywords: 5, Location: 2, Industry: 1.5, JobType: 1.5}
}

const maxScore = 10

// Score rates how well a listing matches the config on a 0-10 integer scale.
// jobType is the listing's employment type already mapped to the canonical vocabulary.
func (w Weights) Score(cfg *domain.AutoApplyConfig, l *domain.Listing, jobType domain.JobType) int {
	text := strings.ToLower(l.Title + " " + l.Description)

	sum := w.keywordScore(cfg.Keywords, text) +
		substringScore(w.Location, cfg.Locations, l.Location) +
		substringScore(w.Industry, cfg.Industries, l.Industry) +
		w.jobTypeScore(cfg.JobTypes, jobType)

	score := int(math.Round(sum))
	return max(0, min(maxScore, score))
}

func (w Weights) keywordScore(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return w.Keywords / 2
	}
	matched := 0
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			matched++
		}
	}
	return w.Keywords * float64(matched) / float64(len(keywords))
}

func substringScore(weight float64, configured []string, value string) float64 {
	if len(configured) == 0 {
		return weight / 2
	}
	if _, ok := containsAny(value, configured); ok {
		return weight
	}
	return 0
}

func (w Weights) jobTypeScore(configured []domain.JobType, jobType domain.JobType) float64 {
	if len(configured) == 0 {
		return w.JobType / 2
	}
	if slices.Contains(configured, jobType) {
		return w.JobType
	}
	return 0
}

// containsAny returns the first term found in text, case-insensitively
func containsAny(text string, terms []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}
