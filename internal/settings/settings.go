// Package settings persists per-category legend customization.
package settings

import (
	"github.com/scatterview/server/internal/legend"
)

// Category holds the persisted customization of one category's legend.
type Category struct {
	SortMode   string                     `json:"sort_mode,omitempty"`
	MaxVisible int                        `json:"max_visible,omitempty"`
	Hidden     []string                   `json:"hidden,omitempty"`
	Overrides  map[string]legend.Override `json:"overrides,omitempty"`
}

// IsZero reports whether the category carries no customization.
func (c Category) IsZero() bool {
	return c.SortMode == "" && c.MaxVisible == 0 && len(c.Hidden) == 0 && len(c.Overrides) == 0
}

// Settings maps category names to their persisted customization. The same
// shape backs the settings store and the optional fourth bundle document.
type Settings struct {
	Categories map[string]Category `json:"categories,omitempty"`
}

// Category returns the customization for a category, zero if absent.
func (s *Settings) Category(name string) Category {
	if s == nil {
		return Category{}
	}
	return s.Categories[name]
}

// Set stores a category customization, dropping it when zero.
func (s *Settings) Set(name string, c Category) {
	if c.IsZero() {
		delete(s.Categories, name)
		return
	}
	if s.Categories == nil {
		s.Categories = make(map[string]Category)
	}
	s.Categories[name] = c
}

// IsEmpty reports whether no category carries customization.
func (s *Settings) IsEmpty() bool {
	return s == nil || len(s.Categories) == 0
}

// Capture snapshots a legend engine's customization.
func Capture(e *legend.Engine) Category {
	c := Category{
		SortMode:   string(e.SortMode()),
		MaxVisible: e.MaxVisible(),
		Hidden:     e.HiddenValues(),
		Overrides:  e.Overrides(),
	}
	if c.SortMode == string(legend.SortSizeDesc) {
		c.SortMode = ""
	}
	if c.MaxVisible == legend.DefaultMaxVisible {
		c.MaxVisible = 0
	}
	return c
}

// Apply replays persisted customization onto a legend engine.
func Apply(c Category, e *legend.Engine) {
	if mode := legend.SortMode(c.SortMode); c.SortMode != "" && legend.ValidSortMode(mode) {
		e.SetSortMode(mode)
	}
	if c.MaxVisible > 0 {
		e.SetMaxVisible(c.MaxVisible)
	}
	e.SetHidden(c.Hidden)
	e.SetOverrides(c.Overrides)
}
