package playback

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/presetdeck/internal/library"
)

type fakeLoader struct {
	active string
	loads  []string
	reject map[string]bool
}

func (f *fakeLoader) LoadPreset(path string) bool {
	if path == "" || f.reject[path] {
		return false
	}
	f.active = path
	f.loads = append(f.loads, path)
	return true
}

func (f *fakeLoader) ActivePreset() string { return f.active }

func playlistOf(n int) *library.Playlist {
	p := library.NewPlaylist("test")
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		p.Add(library.Item{PresetName: name, PresetPath: "/p/" + name + ".milk"})
	}
	return p
}

func frameAt(level float32) []float32 {
	f := make([]float32, 512)
	for i := range f {
		if i%2 == 0 {
			f[i] = level
		} else {
			f[i] = -level
		}
	}
	return f
}

func TestBeatHysteresisSequence(t *testing.T) {
	const threshold = 0.1
	d := NewBeatDetector(threshold)
	levels := []float64{0, 2 * threshold, 0, 2 * threshold, 0.3 * threshold, 2 * threshold}
	edges := 0
	for _, lvl := range levels {
		if d.FeedEnergy(lvl) {
			edges++
		}
	}
	if edges != 3 {
		t.Fatalf("edges=%d want=3", edges)
	}
}

func TestBeatHysteresisIgnoresChatter(t *testing.T) {
	d := NewBeatDetector(0.1)
	// dips that stay above 0.6*T never re-arm
	levels := []float64{0.2, 0.07, 0.2, 0.09, 0.2, 0.05, 0.2}
	edges := 0
	for _, lvl := range levels {
		if d.FeedEnergy(lvl) {
			edges++
		}
	}
	if edges != 2 {
		t.Fatalf("edges=%d want=2", edges)
	}
}

func TestBeatEnergyUsesWindow(t *testing.T) {
	d := NewBeatDetector(0.1)
	samples := make([]float32, 2048)
	for i := 1024; i < len(samples); i++ {
		samples[i] = 1
	}
	assert.Equal(t, 0.0, d.Energy(samples))
	assert.InDelta(t, 0.5, d.Energy(frameAt(0.5)), 1e-6)
	assert.False(t, d.Feed(nil))
}

func TestToggleOnEmptyPlaylist(t *testing.T) {
	var statuses []string
	c := NewCoordinator(library.NewPlaylist("x"), &fakeLoader{}, Config{Notify: func(s string) { statuses = append(statuses, s) }})
	err := c.Toggle(time.Unix(0, 0))
	assert.ErrorIs(t, err, ErrEmptyPlaylist)
	assert.Equal(t, []string{"Playlist is empty."}, statuses)
	assert.False(t, c.Playing())
	assert.ErrorIs(t, c.Next(time.Unix(0, 0)), ErrEmptyPlaylist)
	assert.ErrorIs(t, c.Previous(time.Unix(0, 0)), ErrEmptyPlaylist)
}

func TestToggleLoadFailure(t *testing.T) {
	var statuses []string
	loader := &fakeLoader{reject: map[string]bool{"/p/a.milk": true}}
	c := NewCoordinator(playlistOf(2), loader, Config{Notify: func(s string) { statuses = append(statuses, s) }})
	assert.ErrorIs(t, c.Toggle(time.Unix(0, 0)), ErrLoadFailed)
	assert.False(t, c.Playing())
	assert.Equal(t, []string{"Failed to load selected playlist preset."}, statuses)
}

func TestToggleSkipsReloadOfActivePreset(t *testing.T) {
	loader := &fakeLoader{active: "/p/b.milk"}
	c := NewCoordinator(playlistOf(3), loader, Config{})
	require.True(t, c.Select(1))
	require.NoError(t, c.Toggle(time.Unix(0, 0)))
	assert.True(t, c.Playing())
	assert.Empty(t, loader.loads)

	require.NoError(t, c.Toggle(time.Unix(1, 0)))
	assert.False(t, c.Playing())
	assert.Equal(t, 1, c.Current())
}

func TestSequentialNextAndPreviousWrap(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(3), loader, Config{})
	now := time.Unix(0, 0)
	require.NoError(t, c.Next(now))
	require.NoError(t, c.Next(now))
	require.NoError(t, c.Next(now))
	require.NoError(t, c.Next(now))
	assert.Equal(t, []string{"/p/a.milk", "/p/b.milk", "/p/c.milk", "/p/a.milk"}, loader.loads)

	require.NoError(t, c.Previous(now))
	assert.Equal(t, 2, c.Current())
}

func TestShuffleNeverRepeatsCurrent(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(2), loader, Config{Shuffle: true, Rand: rand.New(rand.NewPCG(1, 2))})
	now := time.Unix(0, 0)
	require.NoError(t, c.Play(0, now))
	for i := 0; i < 1000; i++ {
		prev := c.Current()
		require.NoError(t, c.Next(now))
		if c.Current() == prev {
			t.Fatalf("trial %d: shuffle repeated index %d", i, prev)
		}
	}

	c = NewCoordinator(playlistOf(5), loader, Config{Shuffle: true, Rand: rand.New(rand.NewPCG(7, 9))})
	require.NoError(t, c.Play(3, now))
	for i := 0; i < 1000; i++ {
		prev := c.Current()
		require.NoError(t, c.Next(now))
		if c.Current() == prev {
			t.Fatalf("trial %d: shuffle repeated index %d", i, prev)
		}
	}
}

func TestShuffleSingleEntryStaysPut(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(1), loader, Config{Shuffle: true})
	require.NoError(t, c.Next(time.Unix(0, 0)))
	require.NoError(t, c.Next(time.Unix(0, 0)))
	assert.Equal(t, 0, c.Current())
}

func TestDurationAdvanceScenario(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(3), loader, Config{Mode: ModeDuration, Duration: 20 * time.Second})
	start := time.Unix(1000, 0)
	require.NoError(t, c.Toggle(start))
	require.Equal(t, []string{"/p/a.milk"}, loader.loads)

	assert.False(t, c.Tick(start.Add(19900*time.Millisecond)))
	assert.Len(t, loader.loads, 1)

	at := start.Add(20 * time.Second)
	assert.True(t, c.Tick(at))
	assert.Len(t, loader.loads, 2)
	assert.Equal(t, time.Duration(0), c.Elapsed(at))
	assert.False(t, c.Tick(at))
}

func TestDurationIgnoredWhenStoppedOrOtherMode(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(2), loader, Config{Mode: ModeNone})
	start := time.Unix(0, 0)
	assert.False(t, c.Tick(start.Add(time.Hour)))
	require.NoError(t, c.Toggle(start))
	assert.False(t, c.Tick(start.Add(time.Hour)))
}

func TestBeatCountAdvance(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(2), loader, Config{Mode: ModeBeatCount, BeatCount: 2, Threshold: 0.1})
	now := time.Unix(0, 0)
	require.NoError(t, c.Toggle(now))

	high, low := frameAt(0.3), frameAt(0)
	assert.False(t, c.OnFrame(high, now))
	assert.False(t, c.OnFrame(low, now))
	assert.True(t, c.OnFrame(high, now))
	assert.Equal(t, 0, c.State(now).Beats)
	assert.Equal(t, "/p/b.milk", loader.active)
}

func TestLoadResetsCountersAcrossModes(t *testing.T) {
	loader := &fakeLoader{}
	c := NewCoordinator(playlistOf(3), loader, Config{Mode: ModeBeatCount, BeatCount: 8, Threshold: 0.1})
	now := time.Unix(0, 0)
	require.NoError(t, c.Toggle(now))
	c.OnFrame(frameAt(0.3), now)
	c.OnFrame(frameAt(0), now)
	c.OnFrame(frameAt(0.3), now)
	require.Equal(t, 2, c.State(now).Beats)

	c.SetMode(ModeDuration)
	later := now.Add(5 * time.Second)
	require.NoError(t, c.Next(later))
	st := c.State(later)
	assert.Equal(t, 0, st.Beats)
	assert.Equal(t, 0.0, st.Elapsed)
}

func TestSettersClamp(t *testing.T) {
	c := NewCoordinator(playlistOf(1), &fakeLoader{}, Config{})
	c.SetBeatCount(0)
	c.SetThreshold(5)
	c.SetDuration(time.Millisecond)
	st := c.State(time.Unix(0, 0))
	assert.Equal(t, 1, st.BeatCount)
	assert.Equal(t, 1.0, st.Threshold)
	assert.Equal(t, 2.0, st.Duration)

	c.SetBeatCount(1000)
	c.SetThreshold(0)
	assert.Equal(t, 128, c.State(time.Unix(0, 0)).BeatCount)
	assert.Equal(t, MinThreshold, c.Detector().Threshold)
}

func TestModeParsingAndCycle(t *testing.T) {
	cases := map[string]Mode{
		"none":       ModeNone,
		"Beat Count": ModeBeatCount,
		"beats":      ModeBeatCount,
		"duration":   ModeDuration,
		"":           ModeDuration,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Fatalf("ParseMode(%q)=%v want=%v", in, got, want)
		}
	}
	assert.Equal(t, ModeDuration, ModeNone.Next())
	assert.Equal(t, ModeNone, ModeBeatCount.Next())
}
