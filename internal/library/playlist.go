package library

// Item is one playlist entry.
type Item struct {
	PresetName string `json:"presetName"`
	PresetPath string `json:"presetPath"`
}

// Playlist is an ordered, named list of presets.
type Playlist struct {
	Name  string
	items []Item
}

// NewPlaylist returns an empty playlist.
func NewPlaylist(name string) *Playlist {
	return &Playlist{Name: name}
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	return len(p.items)
}

// At returns the entry at row.
func (p *Playlist) At(row int) (Item, bool) {
	if row < 0 || row >= len(p.items) {
		return Item{}, false
	}
	return p.items[row], true
}

// Items returns a copy of every entry.
func (p *Playlist) Items() []Item {
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Add appends item.
func (p *Playlist) Add(item Item) {
	p.items = append(p.items, item)
}

// Remove deletes the entry at row.
func (p *Playlist) Remove(row int) bool {
	if row < 0 || row >= len(p.items) {
		return false
	}
	p.items = append(p.items[:row], p.items[row+1:]...)
	return true
}

// MoveUp swaps row with the one above it.
func (p *Playlist) MoveUp(row int) bool {
	if row <= 0 || row >= len(p.items) {
		return false
	}
	p.items[row-1], p.items[row] = p.items[row], p.items[row-1]
	return true
}

// MoveDown swaps row with the one below it.
func (p *Playlist) MoveDown(row int) bool {
	if row < 0 || row >= len(p.items)-1 {
		return false
	}
	p.items[row+1], p.items[row] = p.items[row], p.items[row+1]
	return true
}

// Clear removes every entry.
func (p *Playlist) Clear() {
	p.items = nil
}

// Replace swaps in a new entry list.
func (p *Playlist) Replace(items []Item) {
	p.items = make([]Item, len(items))
	copy(p.items, items)
}

// IndexOf returns the first row holding path, or -1.
func (p *Playlist) IndexOf(path string) int {
	for i, it := range p.items {
		if it.PresetPath == path {
			return i
		}
	}
	return -1
}
