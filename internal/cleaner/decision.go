package cleaner

import (
	"nrrelic/internal/itemstate"
)

// CleaningMode что делать с негодными предметами
type CleaningMode string

const (
	Sell     CleaningMode = "sell"
	Favorite CleaningMode = "favorite"
)

// Action действие над предметом
type Action string

const (
	ActionKeep           Action = "keep"
	ActionSkip           Action = "skip"
	ActionSell           Action = "sell"
	ActionUnfavoriteSell Action = "unfavorite_sell"
	ActionFavorite       Action = "favorite"
	ActionUnfavorite     Action = "unfavorite"
	ActionDuplicate      Action = "duplicate"
)

type skipKey struct {
	state itemstate.State
	mode  CleaningMode
	allow bool
}

// skipTable полная таблица пропуска: состояние x режим x разрешение
// работать с избранными
var skipTable = map[skipKey]bool{
	{itemstate.Light, Sell, false}:                     false,
	{itemstate.Light, Sell, true}:                      false,
	{itemstate.Light, Favorite, false}:                 false,
	{itemstate.Light, Favorite, true}:                  false,
	{itemstate.DarkFavorited, Sell, false}:             true,
	{itemstate.DarkFavorited, Sell, true}:              false,
	{itemstate.DarkFavorited, Favorite, false}:         true,
	{itemstate.DarkFavorited, Favorite, true}:          false,
	{itemstate.DarkEquipped, Sell, false}:              true,
	{itemstate.DarkEquipped, Sell, true}:               true,
	{itemstate.DarkEquipped, Favorite, false}:          false,
	{itemstate.DarkEquipped, Favorite, true}:           false,
	{itemstate.DarkFavoritedEquipped, Sell, false}:     true,
	{itemstate.DarkFavoritedEquipped, Sell, true}:      true,
	{itemstate.DarkFavoritedEquipped, Favorite, false}: true,
	{itemstate.DarkFavoritedEquipped, Favorite, true}:  false,
	{itemstate.DarkOfficial, Sell, false}:              true,
	{itemstate.DarkOfficial, Sell, true}:               true,
	{itemstate.DarkOfficial, Favorite, false}:          false,
	{itemstate.DarkOfficial, Favorite, true}:           false,
}

// ShouldSkip пропускается ли предмет без распознавания
func ShouldSkip(state itemstate.State, mode CleaningMode, allowFavorited bool) bool {
	skip, ok := skipTable[skipKey{state, mode, allowFavorited}]
	return !ok || skip
}

// Plan клавиши и изменения счетчиков для одного предмета
type Plan struct {
	Action Action
	Keys   []string
	// Advanced курсор уже сдвинут действием (пометка продажи)
	Advanced    bool
	Sold        int
	Favorited   int
	Unfavorited int
	Pending     int
}

// Decide выбирает действие по состоянию и решению
func Decide(state itemstate.State, qualified bool, mode CleaningMode, keys Keys) Plan {
	switch mode {
	case Sell:
		if qualified {
			return Plan{Action: ActionKeep}
		}
		switch state {
		case itemstate.Light:
			return Plan{Action: ActionSell, Keys: []string{keys.MarkSale}, Advanced: true, Sold: 1, Pending: 1}
		case itemstate.DarkFavorited:
			return Plan{
				Action:      ActionUnfavoriteSell,
				Keys:        []string{keys.ToggleFavorite, keys.MarkSale},
				Advanced:    true,
				Sold:        1,
				Unfavorited: 1,
				Pending:     1,
			}
		}
	case Favorite:
		// экипированные и официальные предметы не трогаются
		if qualified && state == itemstate.Light {
			return Plan{Action: ActionFavorite, Keys: []string{keys.ToggleFavorite}, Favorited: 1}
		}
		if !qualified && state == itemstate.DarkFavorited {
			return Plan{Action: ActionUnfavorite, Keys: []string{keys.ToggleFavorite}, Unfavorited: 1}
		}
	}
	return Plan{Action: ActionKeep}
}
