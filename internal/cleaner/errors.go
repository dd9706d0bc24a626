package cleaner

import (
	"errors"

	"nrrelic/internal/affix"
	"nrrelic/internal/preset"
	"nrrelic/internal/vocabulary"
)

// ErrSessionActive сессия уже запущена
var ErrSessionActive = errors.New("cleaning session already active")

// Kind вид сбоя для журнала
type Kind string

const (
	KindNone                     Kind = ""
	KindRecognitionFailure       Kind = "RecognitionFailure"
	KindVocabularyLoadFailure    Kind = "VocabularyLoadFailure"
	KindRuleSetValidationFailure Kind = "RuleSetValidationFailure"
	KindInteractionFailure       Kind = "InteractionFailure"
)

// KindOf определяет вид сбоя по цепочке ошибок
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, affix.ErrRecognitionFailed):
		return KindRecognitionFailure
	case errors.Is(err, vocabulary.ErrVocabularyLoad):
		return KindVocabularyLoadFailure
	case errors.Is(err, preset.ErrRuleSetValidation):
		return KindRuleSetValidationFailure
	default:
		return KindInteractionFailure
	}
}

// Fatal останавливает ли сбой всю сессию
func (k Kind) Fatal() bool {
	return k == KindVocabularyLoadFailure || k == KindRuleSetValidationFailure
}

