package preset

import (
	"nrrelic/internal/vocabulary"
)

// Причины решения
const (
	ReasonSinglePositive      = "single_positive"
	ReasonBlacklist           = "blacklist_match"
	ReasonInsufficientMatches = "insufficient_matches"
)

// MatchResult решение по набору свойств предмета
type MatchResult struct {
	Qualified       bool
	Reason          string
	PositiveMatches int
	NegativeMatches int
	// Combination имя комбинации, давшей решение
	Combination string
	Matched     []string
}

// RequiredMatches требуемое число совпадений
func RequiredMatches(requireDouble bool) int {
	if requireDouble {
		return 2
	}
	return 3
}

// Match решает, годится ли предмет. Общий набор объединяется не более чем
// с одним специальным набором за раз.
func (s *Store) Match(mode vocabulary.Mode, affixes []vocabulary.Entry, requireDouble bool) MatchResult {
	var positive, negative []string
	for _, a := range affixes {
		if a.IsPositive() {
			positive = append(positive, a.Text)
		} else {
			negative = append(negative, a.Text)
		}
	}

	if len(positive) == 1 && len(negative) == 0 {
		return MatchResult{Reason: ReasonSinglePositive}
	}

	if mode == vocabulary.Deepnight {
		black := toSet(s.Blacklist().Affixes)
		var hits []string
		for _, n := range negative {
			if black[n] {
				hits = append(hits, n)
			}
		}
		if len(hits) > 0 {
			return MatchResult{
				Reason:          ReasonBlacklist,
				NegativeMatches: len(hits),
				Combination:     BlacklistID,
				Matched:         hits,
			}
		}
	}

	required := RequiredMatches(requireDouble)
	best := MatchResult{Reason: ReasonInsufficientMatches}
	general, ok := s.General(mode)
	if !ok {
		return best
	}

	for _, combo := range combinations(general, s.ActiveDedicated(mode)) {
		matched := intersect(positive, combo.affixes)
		if len(matched) >= required {
			return MatchResult{
				Qualified:       true,
				Reason:          combo.name + "_match",
				PositiveMatches: len(matched),
				Combination:     combo.name,
				Matched:         matched,
			}
		}
		if len(matched) > best.PositiveMatches {
			best.PositiveMatches = len(matched)
			best.Combination = combo.name
			best.Matched = matched
		}
	}
	return best
}

type combination struct {
	name    string
	affixes map[string]bool
}

// combinations общий набор плюс каждый специальный отдельно; без активных
// специальных наборов остается один общий
func combinations(general RuleSet, dedicated []RuleSet) []combination {
	if len(dedicated) == 0 {
		return []combination{{name: general.Name, affixes: toSet(general.Affixes)}}
	}
	out := make([]combination, 0, len(dedicated))
	for _, d := range dedicated {
		set := toSet(general.Affixes)
		for _, a := range d.Affixes {
			set[a] = true
		}
		out = append(out, combination{name: general.Name + "+" + d.Name, affixes: set})
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func intersect(items []string, set map[string]bool) []string {
	var out []string
	for _, it := range items {
		if set[it] {
			out = append(out, it)
		}
	}
	return out
}
