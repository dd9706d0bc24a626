package preset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrrelic/internal/logger"
	"nrrelic/internal/vocabulary"
)

func newTestLogger(t *testing.T) *logger.LoggerManager {
	t.Helper()
	l, err := logger.NewLoggerManager(filepath.Join(t.TempDir(), "test.log"))
	require.NoError(t, err)
	l.SetConsole(false)
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "presets.json"), newTestLogger(t))
	require.NoError(t, err)
	return s
}

func pos(texts ...string) []vocabulary.Entry {
	out := make([]vocabulary.Entry, len(texts))
	for i, t := range texts {
		out[i] = vocabulary.Entry{Text: t, Polarity: vocabulary.Positive}
	}
	return out
}

func neg(texts ...string) []vocabulary.Entry {
	out := make([]vocabulary.Entry, len(texts))
	for i, t := range texts {
		out[i] = vocabulary.Entry{Text: t, Polarity: vocabulary.Negative}
	}
	return out
}

func TestNewStoreCreatesDefaults(t *testing.T) {
	s := newTestStore(t)
	_, err := os.Stat(s.Path())
	require.NoError(t, err)

	g, ok := s.General(vocabulary.Normal)
	require.True(t, ok)
	assert.Equal(t, NormalGeneralID, g.ID)
	g, ok = s.General(vocabulary.Deepnight)
	require.True(t, ok)
	assert.Equal(t, DeepnightGeneralID, g.ID)
	assert.Equal(t, BlacklistID, s.Blacklist().ID)

	reopened, err := NewStore(s.Path(), newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, s.All(), reopened.All())
}

func TestDedicatedCRUD(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateDedicated(vocabulary.Normal, "Волшебник", []string{"智力+3"})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Len(t, s.Dedicated(vocabulary.Normal), 1)
	assert.Empty(t, s.Dedicated(vocabulary.Deepnight))

	name := "Маг"
	require.NoError(t, s.UpdateDedicated(id, &name, nil))
	got := s.Dedicated(vocabulary.Normal)[0]
	assert.Equal(t, "Маг", got.Name)
	assert.Equal(t, []string{"智力+3"}, got.Affixes)

	active, err := s.ToggleActive(id)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Empty(t, s.ActiveDedicated(vocabulary.Normal))

	require.NoError(t, s.DeleteDedicated(id))
	assert.Empty(t, s.Dedicated(vocabulary.Normal))
	assert.ErrorIs(t, s.DeleteDedicated(id), ErrNotFound)
	assert.ErrorIs(t, s.DeleteDedicated(BlacklistID), ErrNotFound)
	_, err = s.ToggleActive(NormalGeneralID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDedicatedLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < MaxDedicated; i++ {
		_, err := s.CreateDedicated(vocabulary.Deepnight, fmt.Sprintf("набор %d", i), nil)
		require.NoError(t, err)
	}
	_, err := s.CreateDedicated(vocabulary.Deepnight, "лишний", nil)
	assert.ErrorIs(t, err, ErrDedicatedLimit)
	_, err = s.CreateDedicated(vocabulary.Normal, "другая категория", nil)
	assert.NoError(t, err)
}

func TestUpdateGeneralAndBlacklistPersist(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Deepnight, []string{"智力+2"}))
	require.NoError(t, s.UpdateBlacklist([]string{"持续减少血量"}))

	reopened, err := NewStore(s.Path(), newTestLogger(t))
	require.NoError(t, err)
	g, _ := reopened.General(vocabulary.Deepnight)
	assert.Equal(t, []string{"智力+2"}, g.Affixes)
	assert.Equal(t, []string{"持续减少血量"}, reopened.Blacklist().Affixes)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateDedicated(vocabulary.Normal, "Силач", []string{"力量+3"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotEmpty(t, doc["exported_at"])

	other := newTestStore(t)
	before, err := os.ReadFile(other.Path())
	require.NoError(t, err)

	require.NoError(t, other.Import(bytes.NewReader(buf.Bytes())))
	assert.Len(t, other.Dedicated(vocabulary.Normal), 1)

	snapshot, err := os.ReadFile(other.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, before, snapshot, "previous file is snapshotted before overwrite")

	require.NoError(t, other.RestoreBackup())
	assert.Empty(t, other.Dedicated(vocabulary.Normal))
}

func TestImportRejectsInvalidAndKeepsFile(t *testing.T) {
	s := newTestStore(t)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	invalid := []string{
		`not json`,
		`{"presets":[{"id":"","name":"x","category":"normal_whitelist","affixes":[]}]}`,
		`{"presets":[{"id":"a","name":"x","category":"unknown","affixes":[]}]}`,
		`{"presets":[{"id":"a","name":"x","category":"normal_whitelist"}]}`,
		`{"presets":[{"id":"a","name":"x","category":"normal_whitelist","affixes":[]}]}`,
		`{"presets":[
			{"id":"b","name":"b","category":"deepnight_blacklist","affixes":[]},
			{"id":"g1","name":"g1","category":"normal_whitelist","affixes":[],"is_general":true,"is_active":true},
			{"id":"g2","name":"g2","category":"normal_whitelist","affixes":[],"is_general":true,"is_active":true}]}`,
	}
	for _, in := range invalid {
		err := s.Import(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrRuleSetValidation, in)
	}

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(s.BackupPath())
	assert.True(t, os.IsNotExist(err), "no snapshot for rejected imports")
}

func TestMatchSinglePositiveIsUnqualified(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Normal, []string{"力量+3"}))

	for _, requireDouble := range []bool{true, false} {
		r := s.Match(vocabulary.Normal, pos("力量+3"), requireDouble)
		assert.False(t, r.Qualified)
		assert.Equal(t, ReasonSinglePositive, r.Reason)
	}
}

func TestMatchRequiredCount(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Normal, []string{"力量+3", "智力+3", "生命值上限提升"}))
	affixes := pos("力量+3", "智力+3", "信仰+3")

	r := s.Match(vocabulary.Normal, affixes, true)
	assert.True(t, r.Qualified)
	assert.Equal(t, 2, r.PositiveMatches)
	assert.Equal(t, "Общий набор (обычный)_match", r.Reason)

	r = s.Match(vocabulary.Normal, affixes, false)
	assert.False(t, r.Qualified)
	assert.Equal(t, ReasonInsufficientMatches, r.Reason)
	assert.Equal(t, 2, r.PositiveMatches)
}

func TestMatchNeverCombinesTwoDedicatedSets(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Normal, []string{"力量+3"}))
	_, err := s.CreateDedicated(vocabulary.Normal, "A", []string{"智力+3"})
	require.NoError(t, err)
	_, err = s.CreateDedicated(vocabulary.Normal, "B", []string{"信仰+3"})
	require.NoError(t, err)

	// general+A gives 2, general+B gives 2, the union of all three would give 3
	affixes := pos("力量+3", "智力+3", "信仰+3")
	r := s.Match(vocabulary.Normal, affixes, false)
	assert.False(t, r.Qualified)
	assert.Equal(t, 2, r.PositiveMatches)

	r = s.Match(vocabulary.Normal, affixes, true)
	assert.True(t, r.Qualified)
	assert.Equal(t, "Общий набор (обычный)+A_match", r.Reason)
}

func TestMatchInactiveDedicatedIgnored(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateDedicated(vocabulary.Normal, "A", []string{"智力+3", "信仰+3"})
	require.NoError(t, err)
	affixes := pos("智力+3", "信仰+3")

	assert.True(t, s.Match(vocabulary.Normal, affixes, true).Qualified)
	_, err = s.ToggleActive(id)
	require.NoError(t, err)
	assert.False(t, s.Match(vocabulary.Normal, affixes, true).Qualified)
}

func TestMatchDeepnightBlacklistFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Deepnight, []string{"智力+2", "精神力+2"}))
	require.NoError(t, s.UpdateBlacklist([]string{"持续减少血量"}))

	good := append(pos("智力+2", "精神力+2"), neg("受到伤害增加")...)
	assert.True(t, s.Match(vocabulary.Deepnight, good, true).Qualified)

	bad := append(pos("智力+2", "精神力+2"), neg("持续减少血量")...)
	r := s.Match(vocabulary.Deepnight, bad, true)
	assert.False(t, r.Qualified)
	assert.Equal(t, ReasonBlacklist, r.Reason)

	// normal general set is empty, deepnight affixes do not leak into it
	assert.False(t, s.Match(vocabulary.Normal, pos("智力+2", "精神力+2"), true).Qualified)
}

func TestMatchSinglePositiveWithNegativeFallsThrough(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGeneral(vocabulary.Deepnight, []string{"智力+2"}))
	r := s.Match(vocabulary.Deepnight, append(pos("智力+2"), neg("受到伤害增加")...), true)
	assert.False(t, r.Qualified)
	assert.Equal(t, ReasonInsufficientMatches, r.Reason)
	assert.Equal(t, 1, r.PositiveMatches)
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 8)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, func(err error) { reloaded <- err }) }()
	time.Sleep(100 * time.Millisecond)

	external, err := NewStore(filepath.Join(t.TempDir(), "other.json"), newTestLogger(t))
	require.NoError(t, err)
	_, err = external.CreateDedicated(vocabulary.Normal, "извне", []string{"力量+3"})
	require.NoError(t, err)
	data, err := os.ReadFile(external.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, 0o644))

	deadline := time.After(5 * time.Second)
	for len(s.Dedicated(vocabulary.Normal)) == 0 {
		select {
		case <-reloaded:
		case <-deadline:
			t.Fatal("store was not reloaded after external edit")
		}
	}
	cancel()
	require.NoError(t, <-done)
}
