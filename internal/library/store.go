package library

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	metadataFile = "preset-metadata.json"
	settingsFile = "settings.json"
	playlistsDir = "playlists"
)

var unsafePlaylistChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizePlaylistName maps a display name to a safe file stem.
func SanitizePlaylistName(name string) string {
	clean := unsafePlaylistChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if clean == "" {
		return "playlist"
	}
	return clean
}

// Store persists metadata, playlists and settings under one data directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// MetadataPath returns the metadata file location.
func (s *Store) MetadataPath() string {
	return filepath.Join(s.dir, metadataFile)
}

// PlaylistPath returns the file a playlist name maps to.
func (s *Store) PlaylistPath(name string) string {
	return filepath.Join(s.dir, playlistsDir, SanitizePlaylistName(name)+".json")
}

// LoadMetadata reads stored annotations; a missing or broken file yields none.
func (s *Store) LoadMetadata() map[string]Metadata {
	meta, err := s.ImportMetadata(s.MetadataPath())
	if err != nil {
		return map[string]Metadata{}
	}
	return meta
}

// SaveMetadata stores one preset's annotation, keeping the others.
func (s *Store) SaveMetadata(presetPath string, m Metadata) error {
	meta := s.LoadMetadata()
	meta[presetPath] = m
	return s.ExportMetadata(s.MetadataPath(), meta)
}

// SaveMetadataMap replaces every stored annotation.
func (s *Store) SaveMetadataMap(meta map[string]Metadata) error {
	return s.ExportMetadata(s.MetadataPath(), meta)
}

// ExportMetadata writes annotations to path.
func (s *Store) ExportMetadata(path string, meta map[string]Metadata) error {
	data, err := EncodeMetadata(meta)
	if err != nil {
		return newError("export metadata", path, err)
	}
	if err := writeFile(path, data); err != nil {
		return newError("export metadata", path, err)
	}
	return nil
}

// ImportMetadata reads annotations from path.
func (s *Store) ImportMetadata(path string) (map[string]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError("import metadata", path, err)
	}
	meta, err := DecodeMetadata(data)
	if err != nil {
		return nil, newError("import metadata", path, err)
	}
	return meta, nil
}

// ListPlaylists returns stored playlist names sorted case-insensitively.
func (s *Store) ListPlaylists() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, playlistsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, newError("list playlists", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

// SavePlaylist stores p under its sanitized name.
func (s *Store) SavePlaylist(p *Playlist) error {
	return s.ExportPlaylist(s.PlaylistPath(p.Name), p.Name, p.Items())
}

// LoadPlaylist reads a stored playlist by name.
func (s *Store) LoadPlaylist(name string) (*Playlist, error) {
	stored, items, err := s.ImportPlaylist(s.PlaylistPath(name))
	if err != nil {
		return nil, err
	}
	if stored == "" {
		stored = name
	}
	p := NewPlaylist(stored)
	p.Replace(items)
	return p, nil
}

// ExportPlaylist writes a playlist document to path.
func (s *Store) ExportPlaylist(path, name string, items []Item) error {
	data, err := EncodePlaylist(name, items)
	if err != nil {
		return newError("export playlist", path, err)
	}
	if err := writeFile(path, data); err != nil {
		return newError("export playlist", path, err)
	}
	return nil
}

// ImportPlaylist reads a playlist document from path.
func (s *Store) ImportPlaylist(path string) (string, []Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, newError("import playlist", path, err)
	}
	name, items, err := DecodePlaylist(data)
	if err != nil {
		return "", nil, newError("import playlist", path, err)
	}
	return name, items, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
