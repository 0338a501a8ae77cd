package writer

import "strings"

// Canonical item quality tiers, lowest to highest.
const (
	QualityBroken    = "破损"
	QualityCommon    = "普通"
	QualityRare      = "稀有"
	QualityEpic      = "史诗"
	QualityLegendary = "传说"
	QualityPristine  = "神话"
)

// qualityAliases maps normalised alias spellings to canonical tiers.
var qualityAliases = map[string]string{
	"broken":    QualityBroken,
	"破损":        QualityBroken,
	"损坏":        QualityBroken,
	"common":    QualityCommon,
	"普通":        QualityCommon,
	"n":         QualityCommon,
	"c":         QualityCommon,
	"rare":      QualityRare,
	"稀有":        QualityRare,
	"uncommon":  QualityRare,
	"精良":        QualityRare,
	"r":         QualityRare,
	"epic":      QualityEpic,
	"史诗":        QualityEpic,
	"sr":        QualityEpic,
	"s":         QualityEpic,
	"legendary": QualityLegendary,
	"传说":        QualityLegendary,
	"ssr":       QualityLegendary,
	"ss":        QualityLegendary,
	"pristine":  QualityPristine,
	"神话":        QualityPristine,
	"mythic":    QualityPristine,
	"ur":        QualityPristine,
	"sss":       QualityPristine,
	"ex":        QualityPristine,
}

// NormalizeQuality canonicalises an item quality label. Aliases are matched
// case-insensitively with spaces, underscores, and dashes stripped; unknown
// labels fall back to the common tier.
func NormalizeQuality(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(normalized)
	if normalized == "" {
		return QualityCommon
	}
	if tier, ok := qualityAliases[normalized]; ok {
		return tier
	}
	return QualityCommon
}
