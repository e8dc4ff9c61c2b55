package library

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
)

const metadataVersion = 1

type metadataDocument struct {
	Version int                 `json:"version"`
	Presets map[string]Metadata `json:"presets"`
}

// EncodeMetadata renders the versioned metadata document.
func EncodeMetadata(meta map[string]Metadata) ([]byte, error) {
	doc := metadataDocument{Version: metadataVersion, Presets: make(map[string]Metadata, len(meta))}
	for path, m := range meta {
		m = m.Normalize()
		if m.Tags == nil {
			m.Tags = []string{}
		}
		doc.Presets[path] = m
	}
	return json.MarshalIndent(doc, "", "    ")
}

// DecodeMetadata accepts the versioned document or a bare object keyed by
// preset path. A bare number is read as a rating.
func DecodeMetadata(data []byte) (map[string]Metadata, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil || root == nil {
		return nil, ErrInvalidDocument
	}

	entries := root
	if raw, ok := root["presets"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil && nested != nil {
			entries = nested
		}
	}

	out := make(map[string]Metadata, len(entries))
	for path, raw := range entries {
		out[path] = decodeEntry(raw)
	}
	return out, nil
}

func decodeEntry(raw json.RawMessage) Metadata {
	m := DefaultMetadata()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return m
	}
	switch val := v.(type) {
	case float64:
		m.Rating = clampRating(int(math.Trunc(val)))
	case map[string]any:
		if r, ok := val["rating"].(float64); ok {
			m.Rating = int(math.Trunc(r))
		}
		if f, ok := val["favorite"].(bool); ok {
			m.Favorite = f
		}
		if tags, ok := val["tags"].([]any); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					m.Tags = append(m.Tags, s)
				}
			}
		}
	}
	return m.Normalize()
}

type playlistDocument struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// EncodePlaylist renders a playlist document.
func EncodePlaylist(name string, items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.MarshalIndent(playlistDocument{Name: name, Items: items}, "", "    ")
}

// DecodePlaylist parses a playlist document. Entries without a path are
// skipped and a missing name falls back to the file base name.
func DecodePlaylist(data []byte) (string, []Item, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil, ErrInvalidDocument
	}
	var doc struct {
		Name  string            `json:"name"`
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return "", nil, ErrInvalidDocument
	}

	items := make([]Item, 0, len(doc.Items))
	for _, raw := range doc.Items {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}
		if it.PresetPath == "" {
			continue
		}
		if it.PresetName == "" {
			base := filepath.Base(it.PresetPath)
			it.PresetName = strings.TrimSuffix(base, filepath.Ext(base))
		}
		items = append(items, it)
	}
	return doc.Name, items, nil
}
