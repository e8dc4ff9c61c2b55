package library

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// PresetExtensions lists the file suffixes recognised as presets.
var PresetExtensions = []string{".milk", ".prjm"}

// Metadata is the user annotation attached to a preset path.
type Metadata struct {
	Rating   int      `json:"rating"`
	Favorite bool     `json:"favorite"`
	Tags     []string `json:"tags"`
}

// DefaultMetadata is what an unannotated preset carries.
func DefaultMetadata() Metadata {
	return Metadata{Rating: 3}
}

// Normalize clamps the rating and drops blank or duplicate tags.
func (m Metadata) Normalize() Metadata {
	m.Rating = clampRating(m.Rating)
	m.Tags = cleanTags(m.Tags)
	return m
}

func clampRating(r int) int {
	if r < 1 {
		return 1
	}
	if r > 5 {
		return 5
	}
	return r
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Preset is one discovered preset file.
type Preset struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
}

// Scan walks dir recursively and returns every preset sorted by name.
func Scan(dir string) ([]Preset, error) {
	if dir == "" {
		return nil, nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, newError("scan", dir, err)
	}

	var presets []Preset
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isPreset(d.Name()) {
			return nil
		}
		base := filepath.Base(path)
		presets = append(presets, Preset{
			Name:     strings.TrimSuffix(base, filepath.Ext(base)),
			Path:     path,
			Metadata: DefaultMetadata(),
		})
		return nil
	})
	if err != nil {
		return nil, newError("scan", dir, err)
	}

	sort.SliceStable(presets, func(i, j int) bool {
		a, b := strings.ToLower(presets[i].Name), strings.ToLower(presets[j].Name)
		if a != b {
			return a < b
		}
		return presets[i].Path < presets[j].Path
	})
	return presets, nil
}

func isPreset(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range PresetExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Filter selects presets by favorite flag and a case-insensitive query over
// name and tags.
type Filter struct {
	Query         string
	FavoritesOnly bool
}

// Match reports whether p passes the filter.
func (f Filter) Match(p Preset) bool {
	if f.FavoritesOnly && !p.Metadata.Favorite {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query == "" {
		return true
	}
	haystack := strings.ToLower(p.Name + " " + strings.Join(p.Metadata.Tags, ", "))
	return strings.Contains(haystack, query)
}

// Library is the scanned preset catalogue with metadata merged in.
type Library struct {
	dir     string
	presets []Preset
}

// New returns an empty library.
func New() *Library {
	return &Library{}
}

// SetDirectory rescans when dir differs from the current one.
func (l *Library) SetDirectory(dir string) error {
	if dir == l.dir && l.presets != nil {
		return nil
	}
	l.dir = dir
	return l.Reload()
}

// Directory returns the scanned root.
func (l *Library) Directory() string {
	return l.dir
}

// Reload rescans the current directory.
func (l *Library) Reload() error {
	presets, err := Scan(l.dir)
	if err != nil {
		l.presets = []Preset{}
		return err
	}
	if presets == nil {
		presets = []Preset{}
	}
	l.presets = presets
	return nil
}

// Presets returns a copy of every preset.
func (l *Library) Presets() []Preset {
	out := make([]Preset, len(l.presets))
	copy(out, l.presets)
	return out
}

// Len returns the preset count.
func (l *Library) Len() int {
	return len(l.presets)
}

// Filter returns the presets that match f.
func (l *Library) Filter(f Filter) []Preset {
	var out []Preset
	for _, p := range l.presets {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// IndexOf returns the row of path, or -1.
func (l *Library) IndexOf(path string) int {
	for i, p := range l.presets {
		if p.Path == path {
			return i
		}
	}
	return -1
}

// Lookup returns the preset stored under path.
func (l *Library) Lookup(path string) (Preset, bool) {
	if i := l.IndexOf(path); i >= 0 {
		return l.presets[i], true
	}
	return Preset{}, false
}

// ApplyMetadata merges annotations into matching presets.
func (l *Library) ApplyMetadata(meta map[string]Metadata) {
	for i := range l.presets {
		if m, ok := meta[l.presets[i].Path]; ok {
			l.presets[i].Metadata = m.Normalize()
		}
	}
}

// Update replaces the metadata of one preset. It reports false for unknown paths.
func (l *Library) Update(path string, m Metadata) bool {
	i := l.IndexOf(path)
	if i < 0 {
		return false
	}
	l.presets[i].Metadata = m.Normalize()
	return true
}

// MetadataMap returns annotations for every preset keyed by path.
func (l *Library) MetadataMap() map[string]Metadata {
	out := make(map[string]Metadata, len(l.presets))
	for _, p := range l.presets {
		out[p.Path] = p.Metadata
	}
	return out
}
