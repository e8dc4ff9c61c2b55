package playback

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guidoenr/presetdeck/internal/library"
)

var (
	// ErrEmptyPlaylist is returned when an operation needs at least one entry.
	ErrEmptyPlaylist = errors.New("playlist is empty")
	// ErrLoadFailed is returned when the engine rejected a playlist entry.
	ErrLoadFailed = errors.New("failed to load playlist preset")
)

const (
	MinDuration     = 2 * time.Second
	MaxDuration     = time.Hour
	DefaultDuration = 20 * time.Second
	MinBeatCount    = 1
	MaxBeatCount    = 128
	DefaultBeats    = 16
	MinThreshold    = 0.001
	MaxThreshold    = 1.0
)

// Mode selects what advances the playlist automatically.
type Mode int

const (
	ModeNone Mode = iota
	ModeDuration
	ModeBeatCount
)

func (m Mode) String() string {
	switch m {
	case ModeDuration:
		return "duration"
	case ModeBeatCount:
		return "beats"
	default:
		return "none"
	}
}

// Next cycles None -> Duration -> BeatCount -> None.
func (m Mode) Next() Mode {
	return (m + 1) % 3
}

// ParseMode maps a name to a Mode, defaulting to duration.
func ParseMode(name string) Mode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off", "manual":
		return ModeNone
	case "beats", "beat", "beatcount", "beat count", "beat_count":
		return ModeBeatCount
	default:
		return ModeDuration
	}
}

// Loader is the engine side a coordinator drives.
type Loader interface {
	LoadPreset(path string) bool
	ActivePreset() string
}

// Config carries the initial coordinator settings.
type Config struct {
	Mode      Mode
	Duration  time.Duration
	BeatCount int
	Threshold float64
	Shuffle   bool
	Rand      *rand.Rand
	Notify    func(string)
	Logger    *zap.SugaredLogger
}

// State is a snapshot for status displays.
type State struct {
	Playing   bool    `json:"playing"`
	Index     int     `json:"index"`
	Length    int     `json:"length"`
	Mode      string  `json:"mode"`
	Elapsed   float64 `json:"elapsedSeconds"`
	Duration  float64 `json:"durationSeconds"`
	Beats     int     `json:"beats"`
	BeatCount int     `json:"beatCount"`
	Threshold float64 `json:"threshold"`
	Shuffle   bool    `json:"shuffle"`
}

// Coordinator auto-advances a playlist by elapsed time or beat count.
// It is not safe for concurrent use; the host loop owns it.
type Coordinator struct {
	playlist *library.Playlist
	loader   Loader
	notify   func(string)
	logger   *zap.SugaredLogger
	rng      *rand.Rand

	mode      Mode
	duration  time.Duration
	beatCount int
	shuffle   bool
	detector  *BeatDetector

	playing    bool
	current    int
	trackStart time.Time
	beats      int
}

// NewCoordinator binds a playlist to a loader.
func NewCoordinator(playlist *library.Playlist, loader Loader, cfg Config) *Coordinator {
	if playlist == nil {
		playlist = library.NewPlaylist("")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Notify == nil {
		cfg.Notify = func(string) {}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if cfg.Duration == 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.BeatCount == 0 {
		cfg.BeatCount = DefaultBeats
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	c := &Coordinator{
		playlist: playlist,
		loader:   loader,
		notify:   cfg.Notify,
		logger:   cfg.Logger,
		rng:      cfg.Rand,
		mode:     cfg.Mode,
		shuffle:  cfg.Shuffle,
		detector: NewBeatDetector(DefaultThreshold),
		current:  -1,
	}
	c.SetDuration(cfg.Duration)
	c.SetBeatCount(cfg.BeatCount)
	c.SetThreshold(cfg.Threshold)
	return c
}

// Playlist returns the driven playlist.
func (c *Coordinator) Playlist() *library.Playlist {
	return c.playlist
}

// SetPlaylist swaps the playlist and stops playback.
func (c *Coordinator) SetPlaylist(p *library.Playlist) {
	if p == nil {
		p = library.NewPlaylist("")
	}
	c.playlist = p
	c.playing = false
	c.current = -1
}

func (c *Coordinator) SetMode(m Mode) { c.mode = m }

func (c *Coordinator) Mode() Mode { return c.mode }

// SetDuration clamps d to [2s, 1h].
func (c *Coordinator) SetDuration(d time.Duration) {
	c.duration = min(max(d, MinDuration), MaxDuration)
}

// SetBeatCount clamps n to [1, 128].
func (c *Coordinator) SetBeatCount(n int) {
	c.beatCount = min(max(n, MinBeatCount), MaxBeatCount)
}

// SetThreshold clamps t to [0.001, 1.0].
func (c *Coordinator) SetThreshold(t float64) {
	c.detector.Threshold = min(max(t, MinThreshold), MaxThreshold)
}

func (c *Coordinator) SetShuffle(enabled bool) { c.shuffle = enabled }

func (c *Coordinator) Shuffle() bool { return c.shuffle }

// Detector exposes the beat detector for tuning its falling ratio and window.
func (c *Coordinator) Detector() *BeatDetector { return c.detector }

func (c *Coordinator) Playing() bool { return c.playing }

// Current returns the selected row, or -1.
func (c *Coordinator) Current() int { return c.current }

// Select marks row as current without loading it.
func (c *Coordinator) Select(row int) bool {
	if row < 0 || row >= c.playlist.Len() {
		return false
	}
	c.current = row
	return true
}

// Toggle flips between playing and stopped. Starting loads the selected (or
// first) entry unless it is already active.
func (c *Coordinator) Toggle(now time.Time) error {
	if c.playlist.Len() == 0 {
		c.notify("Playlist is empty.")
		return ErrEmptyPlaylist
	}

	c.playing = !c.playing
	if !c.playing {
		return nil
	}

	target := c.current
	if target < 0 || target >= c.playlist.Len() {
		target = 0
	}
	item, _ := c.playlist.At(target)
	active := c.loader.ActivePreset()
	needsLoad := active == "" || item.PresetPath != active
	if needsLoad && !c.load(target, now) {
		c.notify("Failed to load selected playlist preset.")
		c.playing = false
		return ErrLoadFailed
	}
	if !needsLoad {
		c.current = target
	}
	if c.trackStart.IsZero() {
		c.trackStart = now
	}
	return nil
}

// Next advances one entry, randomly under shuffle.
func (c *Coordinator) Next(now time.Time) error {
	rows := c.playlist.Len()
	if rows == 0 {
		return ErrEmptyPlaylist
	}
	next := 0
	if c.shuffle && rows > 1 {
		for {
			next = c.rng.IntN(rows)
			if next != c.current {
				break
			}
		}
	} else {
		next = (c.current + 1 + rows) % rows
	}
	if !c.load(next, now) {
		return ErrLoadFailed
	}
	return nil
}

// Previous steps back one entry with wraparound.
func (c *Coordinator) Previous(now time.Time) error {
	rows := c.playlist.Len()
	if rows == 0 {
		return ErrEmptyPlaylist
	}
	current := max(c.current, 0)
	if !c.load((current-1+rows)%rows, now) {
		return ErrLoadFailed
	}
	return nil
}

// Play loads row and resets the track timer and beat counter.
func (c *Coordinator) Play(row int, now time.Time) error {
	if c.playlist.Len() == 0 {
		return ErrEmptyPlaylist
	}
	if !c.load(row, now) {
		return ErrLoadFailed
	}
	return nil
}

func (c *Coordinator) load(row int, now time.Time) bool {
	item, ok := c.playlist.At(row)
	if !ok {
		return false
	}
	if !c.loader.LoadPreset(item.PresetPath) {
		c.logger.Warnw("playlist entry rejected", "row", row, "path", item.PresetPath)
		return false
	}
	c.current = row
	c.trackStart = now
	c.beats = 0
	return true
}

// Tick runs the duration check. It reports whether the playlist advanced.
func (c *Coordinator) Tick(now time.Time) bool {
	if !c.playing || c.mode != ModeDuration || c.trackStart.IsZero() {
		return false
	}
	if now.Sub(c.trackStart) < c.duration {
		return false
	}
	return c.Next(now) == nil
}

// OnFrame feeds one mono frame to the beat counter. It reports whether the
// playlist advanced.
func (c *Coordinator) OnFrame(samples []float32, now time.Time) bool {
	if !c.playing || c.mode != ModeBeatCount || len(samples) == 0 {
		return false
	}
	if !c.detector.Feed(samples) {
		return false
	}
	c.beats++
	if c.beats < c.beatCount {
		return false
	}
	return c.Next(now) == nil
}

// Elapsed returns time spent on the current track.
func (c *Coordinator) Elapsed(now time.Time) time.Duration {
	if c.trackStart.IsZero() {
		return 0
	}
	return now.Sub(c.trackStart)
}

// State snapshots the coordinator.
func (c *Coordinator) State(now time.Time) State {
	return State{
		Playing:   c.playing,
		Index:     c.current,
		Length:    c.playlist.Len(),
		Mode:      c.mode.String(),
		Elapsed:   c.Elapsed(now).Seconds(),
		Duration:  c.duration.Seconds(),
		Beats:     c.beats,
		BeatCount: c.beatCount,
		Threshold: c.detector.Threshold,
		Shuffle:   c.shuffle,
	}
}
