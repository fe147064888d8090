package profiler

// Tier — итоговая оценка качества колонки
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// qualityTier выводит оценку из числа проблем, полноты и уверенности.
// Каждый следующий уровень требует строго худших значений предыдущего.
func qualityTier(issueCount int, completeness, confidence float64) Tier {
	switch {
	case issueCount == 0 && completeness >= 0.95 && confidence >= 0.9:
		return TierExcellent
	case issueCount <= 2 && completeness >= 0.85 && confidence >= 0.7:
		return TierGood
	case issueCount <= 5 && completeness >= 0.6 && confidence >= 0.5:
		return TierFair
	default:
		return TierPoor
	}
}
