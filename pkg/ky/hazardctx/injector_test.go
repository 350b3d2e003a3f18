package hazardctx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	mu         sync.Mutex
	recent     []RiskRecord
	past       []RiskRecord
	nearMisses []NearMissRecord
	pastErr    error
	filters    []Filter
	days       int
}

func (f *fakeHistory) record(filter Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
}

func (f *fakeHistory) GetRecentRisks(ctx context.Context, days int, filter Filter) ([]RiskRecord, error) {
	f.record(filter)
	f.mu.Lock()
	f.days = days
	f.mu.Unlock()
	return f.recent, nil
}

func (f *fakeHistory) GetPastRisks(ctx context.Context, limit int, filter Filter) ([]RiskRecord, error) {
	f.record(filter)
	if f.pastErr != nil {
		return nil, f.pastErr
	}
	return f.past, nil
}

func (f *fakeHistory) GetHiyariHattoItems(ctx context.Context, limit int, filter Filter) ([]NearMissRecord, error) {
	f.record(filter)
	return f.nearMisses, nil
}

// 2026-10-14 is a Wednesday.
var wednesday = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func testSession() store.Session {
	return store.Session{ID: "current", SiteName: "A現場", Weather: "晴れ", WorkStartTime: wednesday}
}

func TestBuildSections(t *testing.T) {
	history := &fakeHistory{
		recent: []RiskRecord{
			{SessionID: "s1", WorkDescription: "足場の組立", HazardDescription: "墜落", RiskLevel: 4, Countermeasures: []string{"安全帯"}},
			{SessionID: "current", WorkDescription: "自分", HazardDescription: "除外される"},
		},
		past:       []RiskRecord{{SessionID: "s2", WorkDescription: "溶接", HazardDescription: "火傷"}},
		nearMisses: []NearMissRecord{{SessionID: "s3", Note: "脚立から滑りそうになった"}, {SessionID: "s4", Note: "  "}},
	}
	injector := NewInjector(history, DefaultOptions(), logger.NewNop())

	out, err := injector.Build(context.Background(), testSession(), "足場を組みます")

	require.NoError(t, err)
	assert.Contains(t, out, "【直近3日間の同じ現場の危険】\n- 足場の組立: 墜落 (危険度4) / 対策: 安全帯")
	assert.Contains(t, out, "【過去の同じ現場の危険】\n- 溶接: 火傷")
	assert.Contains(t, out, "【過去のヒヤリハット】\n- 脚立から滑りそうになった")
	assert.NotContains(t, out, "除外される")
	assert.True(t, strings.HasSuffix(out, closingNote))

	require.Len(t, history.filters, 3)
	for _, f := range history.filters {
		assert.Equal(t, "A現場", f.SiteName)
		assert.Equal(t, "current", f.ExcludeSessionID)
		assert.Equal(t, "足場を組みます", f.SimilarTo)
	}
	assert.Equal(t, 3, history.days)
}

func TestBuildSkipsFailingView(t *testing.T) {
	history := &fakeHistory{
		recent:  []RiskRecord{{SessionID: "s1", HazardDescription: "感電"}},
		pastErr: errors.New("db down"),
	}
	out, err := NewInjector(history, DefaultOptions(), logger.NewNop()).Build(context.Background(), testSession(), "")

	require.NoError(t, err)
	assert.Contains(t, out, "感電")
	assert.NotContains(t, out, "【過去の同じ現場の危険】")
}

func TestBuildEmptyHistory(t *testing.T) {
	out, err := NewInjector(&fakeHistory{}, DefaultOptions(), nil).Build(context.Background(), testSession(), "x")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestBuildNotesWithoutHistory(t *testing.T) {
	session := testSession()
	session.Weather = "雨"
	session.WorkStartTime = wednesday.AddDate(0, 0, -2) // Monday

	out, err := NewInjector(nil, DefaultOptions(), nil).Build(context.Background(), session, "")

	require.NoError(t, err)
	assert.Contains(t, out, "月曜日")
	assert.Contains(t, out, "【天候】雨")
	assert.NotContains(t, out, closingNote)
}

func TestBuildTruncates(t *testing.T) {
	var recent []RiskRecord
	for i := 0; i < 100; i++ {
		recent = append(recent, RiskRecord{SessionID: "s", HazardDescription: strings.Repeat("危", 30)})
	}
	opts := DefaultOptions()
	out, err := NewInjector(&fakeHistory{recent: recent}, opts, nil).Build(context.Background(), testSession(), "")

	require.NoError(t, err)
	assert.Equal(t, opts.MaxChars, utf8.RuneCountInString(out))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInjector(&fakeHistory{}, DefaultOptions(), nil).Build(ctx, testSession(), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDayOfWeekUsesSiteTimeZone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	session := testSession()
	// Monday 07:30 in Tokyo is still Sunday in UTC.
	session.WorkStartTime = time.Date(2026, 10, 11, 22, 30, 0, 0, time.UTC)

	opts := DefaultOptions()
	out, err := NewInjector(nil, opts, nil).Build(context.Background(), session, "")
	require.NoError(t, err)
	assert.NotContains(t, out, "月曜日")

	opts.Location = jst
	out, err = NewInjector(nil, opts, nil).Build(context.Background(), session, "")
	require.NoError(t, err)
	assert.Contains(t, out, "月曜日")
}

func TestDayOfWeekNote(t *testing.T) {
	assert.NotEmpty(t, DayOfWeekNote(time.Monday))
	assert.NotEmpty(t, DayOfWeekNote(time.Friday))
	assert.Empty(t, DayOfWeekNote(time.Wednesday))
}

func TestWeatherNote(t *testing.T) {
	hot := 33.0
	freezing := -2.0
	mild := 18.0

	tests := []struct {
		name    string
		weather string
		temp    *float64
		want    []string
		empty   bool
	}{
		{name: "rain", weather: "小雨", want: []string{"雨:"}},
		{name: "snow english", weather: "Snow", want: []string{"雪:"}},
		{name: "wind", weather: "強風", want: []string{"強風:"}},
		{name: "heat from temperature", weather: "晴れ", temp: &hot, want: []string{"暑さ:"}},
		{name: "cold and snow", weather: "雪", temp: &freezing, want: []string{"雪:", "寒さ:"}},
		{name: "nothing", weather: "晴れ", temp: &mild, empty: true},
		{name: "blank", weather: "", empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeatherNote(tt.weather, tt.temp)
			if tt.empty {
				assert.Empty(t, got)
				return
			}
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestRankBySimilarity(t *testing.T) {
	records := []RiskRecord{
		{SessionID: "a", WorkDescription: "溶接", HazardDescription: "火傷"},
		{SessionID: "b", WorkDescription: "足場の組立", HazardDescription: "足場から墜落"},
		{SessionID: "c", WorkDescription: "運搬", HazardDescription: "腰痛"},
	}

	ranked := RankBySimilarity(records, "足場の組立作業")
	assert.Equal(t, "b", ranked[0].SessionID)
	assert.Equal(t, "a", ranked[1].SessionID, "ties keep order")

	assert.Equal(t, records, RankBySimilarity(records, " "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("足場", "足場"))
	assert.Equal(t, 0.0, Similarity("", "足場"))
	assert.Equal(t, 0.0, Similarity("溶接", "運搬"))
}
