package affix

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nrrelic/internal/logger"
	"nrrelic/internal/vocabulary"
)

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(img image.Image) ([]string, error) {
	args := m.Called(img)
	lines, _ := args.Get(0).([]string)
	return lines, args.Error(1)
}

func newTestLogger(t *testing.T) *logger.LoggerManager {
	t.Helper()
	l, err := logger.NewLoggerManager(filepath.Join(t.TempDir(), "test.log"))
	require.NoError(t, err)
	l.SetConsole(false)
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestStore(t *testing.T) *vocabulary.Store {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		vocabulary.NormalFile:        "1→【祝福】攻击力提升\n2→对倒地敌人造成的伤害提升\n3→提升攻击力，对倒地敌人造成的伤害\n4→生命值上限提升\n5→发动技艺时，追加攻击（仅限大剑）。\n",
		vocabulary.NormalSpecialFile: "1→力量+3\n",
		vocabulary.DeepnightPosFile:  "1→智力+2\n2→精神力+2\n",
		vocabulary.DeepnightNegFile:  "1→持续减少血量\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return vocabulary.NewStore(dir, nil)
}

func blankCapture(calls *int) CaptureFunc {
	return func() (image.Image, error) {
		*calls++
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("智力+2", "智力+2"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("", "智力"))
	assert.InDelta(t, 0.9, Similarity("一二三四五六七八九十", "一二三四五六七八九丁"), 1e-9)
}

func TestResolveLinesExactAndFuzzy(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))

	res, err := r.ResolveLines(vocabulary.Normal, []string{
		"[祝福]攻击力提升",
		"对倒地敌人造成的伤容提升",
		"生命值上跟提升",
	})
	require.NoError(t, err)

	require.Len(t, res.Affixes, 2)
	assert.Equal(t, "【祝福】攻击力提升", res.Affixes[0].Text())
	assert.Equal(t, 1.0, res.Affixes[0].Candidate.Confidence)
	assert.Equal(t, "对倒地敌人造成的伤害提升", res.Affixes[1].Text())
	assert.GreaterOrEqual(t, res.Affixes[1].Candidate.Confidence, SimilarityThreshold)

	require.Len(t, res.Unresolved, 1, "one substitution in seven runes is below threshold")
	assert.Equal(t, "生命值上跟提升", res.Unresolved[0].Text)
}

func TestResolveLinesKeepsFullwidthPunctuation(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))

	res, err := r.ResolveLines(vocabulary.Normal, []string{"发动技艺时，追加攻击（仅限大剑）。"})
	require.NoError(t, err)
	require.Len(t, res.Affixes, 1)
	assert.Equal(t, "发动技艺时，追加攻击（仅限大剑）。", res.Affixes[0].Text())
	assert.Equal(t, 1.0, res.Affixes[0].Candidate.Confidence)
	assert.Empty(t, res.Unresolved)
}

func TestFuzzyAcceptanceIsMonotonic(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))
	target := "对倒地敌人造成的伤害提升"

	tests := []struct {
		ocr      string
		resolved bool
	}{
		{"对倒地敌人造成的伤害提升", true},
		{"对倒地敌人造成的伤容提升", true},
		{"对倒地敌人造戍的伤容提升", false},
		{"对到地敌人造戍的伤容提开", false},
	}
	for _, tt := range tests {
		res, err := r.ResolveLines(vocabulary.Normal, []string{tt.ocr})
		require.NoError(t, err)
		sim := Similarity(tt.ocr, target)
		if tt.resolved {
			require.Len(t, res.Affixes, 1, tt.ocr)
			assert.Equal(t, target, res.Affixes[0].Text())
			assert.GreaterOrEqual(t, sim, SimilarityThreshold)
		} else {
			assert.Empty(t, res.Affixes, tt.ocr)
			assert.Less(t, sim, SimilarityThreshold)
		}
	}
}

func TestCandidatesMergeRecursively(t *testing.T) {
	rules := vocabulary.MergeRules{
		"攻击力":   "提升",
		"攻击力提升": "对倒地",
	}
	r := NewResolver(newTestStore(t), rules, newTestLogger(t))

	got := r.Candidates([]string{"攻击力", "提升", "对倒地敌人", "智力+2"})
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{Text: "攻击力提升对倒地敌人", StartLine: 0, EndLine: 2}, got[0])
	assert.Equal(t, Candidate{Text: "智力+2", StartLine: 3, EndLine: 3}, got[1])
}

func TestCandidatesMergeFullEntryRules(t *testing.T) {
	rules := vocabulary.MergeRules{
		"【追踪者】发动技艺时，轻攻击能使出": "【追踪者】发动技艺时，轻攻击能使出缠绕火焰的追加攻击（仅限大剑）",
		"【女爵】从背后":            "【女爵】从背后使出致命一击后自己的身影会变得难以辨识",
	}
	r := NewResolver(newTestStore(t), rules, newTestLogger(t))

	got := r.Candidates([]string{
		"【追踪者】发动技艺时，轻攻击能使出",
		"缠绕火焰的追加攻击（仅限大剑）",
		"【女爵】从背后使出致命一击后",
		"自己的身影会变得难以辨识",
		"力量+3",
	})
	require.Len(t, got, 3)
	assert.Equal(t, "【追踪者】发动技艺时，轻攻击能使出缠绕火焰的追加攻击（仅限大剑）", got[0].Text)
	assert.Equal(t, 1, got[0].EndLine)
	assert.Equal(t, "【女爵】从背后使出致命一击后自己的身影会变得难以辨识", got[1].Text, "key matches by prefix")
	assert.Equal(t, Candidate{Text: "力量+3", StartLine: 4, EndLine: 4}, got[2])
}

func TestCandidatesMergeRequiresContinuation(t *testing.T) {
	rules := vocabulary.MergeRules{"提升攻击力,对倒地": "敌人造成的伤害"}
	r := NewResolver(newTestStore(t), rules, newTestLogger(t))

	got := r.Candidates([]string{"提升攻击力,对倒地", "力量+3"})
	assert.Len(t, got, 2)

	res, err := r.ResolveLines(vocabulary.Normal, []string{"提升攻击力,对倒地", "敌人造成的伤害"})
	require.NoError(t, err)
	require.Len(t, res.Affixes, 1)
	assert.Equal(t, "提升攻击力，对倒地敌人造成的伤害", res.Affixes[0].Text())
	assert.Equal(t, 1, res.Affixes[0].Candidate.EndLine)
}

func TestUnresolvedFragmentJoinsNextLine(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))

	res, err := r.ResolveLines(vocabulary.Normal, []string{"提升攻击力,对倒地", "万敌人造成的伤害", "力量十3"})
	require.NoError(t, err)
	require.Len(t, res.Affixes, 2)
	assert.Equal(t, "提升攻击力，对倒地敌人造成的伤害", res.Affixes[0].Text())
	assert.Equal(t, "力量+3", res.Affixes[1].Text())
	assert.Empty(t, res.Unresolved)
}

func TestResolveLinesPolarity(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))

	res, err := r.ResolveLines(vocabulary.Deepnight, []string{"智力+2", "持续减少血量", "精神力+2"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Positive())
	assert.Equal(t, 1, res.Negative())
	assert.Equal(t, "持续减少血量|智力+2|精神力+2", res.Fingerprint())
}

func TestResolveAfterReloadIgnoresPreviousMode(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, newTestLogger(t))
	lines := []string{"力量+3"}

	res, err := r.ResolveLines(vocabulary.Normal, lines)
	require.NoError(t, err)
	require.Len(t, res.Affixes, 1)

	res, err = r.ResolveLines(vocabulary.Deepnight, lines)
	require.NoError(t, err)
	assert.Empty(t, res.Affixes)

	res, err = r.ResolveLines(vocabulary.Normal, lines)
	require.NoError(t, err)
	assert.Len(t, res.Affixes, 1)
}

func TestResolveRetriesWithFreshCapture(t *testing.T) {
	rec := &mockRecognizer{}
	rec.On("Recognize", mock.Anything).Return([]string{"???"}, nil).Twice()
	rec.On("Recognize", mock.Anything).Return([]string{"智力+2"}, nil).Once()

	r := NewResolver(newTestStore(t), nil, newTestLogger(t))
	calls := 0
	res, err := r.Resolve(context.Background(), blankCapture(&calls), rec, vocabulary.Deepnight)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Failed)
	require.Len(t, res.Affixes, 1)
	rec.AssertExpectations(t)
}

func TestResolveGivesUpAfterThreeAttempts(t *testing.T) {
	rec := &mockRecognizer{}
	rec.On("Recognize", mock.Anything).Return([]string{"噪声"}, nil)

	r := NewResolver(newTestStore(t), nil, newTestLogger(t))
	calls := 0
	res, err := r.Resolve(context.Background(), blankCapture(&calls), rec, vocabulary.Normal)
	require.ErrorIs(t, err, ErrRecognitionFailed)
	assert.True(t, res.Failed)
	assert.Empty(t, res.Affixes)
	assert.Equal(t, MaxAttempts, calls)
	rec.AssertNumberOfCalls(t, "Recognize", MaxAttempts)
}

func TestResolveSurfacesVocabularyFailure(t *testing.T) {
	rec := &mockRecognizer{}
	rec.On("Recognize", mock.Anything).Return([]string{"智力+2"}, nil)

	store := vocabulary.NewStore(t.TempDir(), nil)
	r := NewResolver(store, nil, newTestLogger(t))
	calls := 0
	_, err := r.Resolve(context.Background(), blankCapture(&calls), rec, vocabulary.Deepnight)
	require.ErrorIs(t, err, vocabulary.ErrVocabularyLoad)
	assert.Equal(t, 1, calls, "vocabulary failures are not retried")
}
