// Package settings keeps the accessibility preferences: a high contrast
// flag and a font scale, saved on every change.
package settings

import (
	"errors"
	"strconv"
	"sync"
)

const (
	KeyHighContrast = "highContrast"
	KeyFontSize     = "fontSize"

	MinFontScale     = 80
	MaxFontScale     = 150
	DefaultFontScale = 100
	FontScaleStep    = 10
)

type Preferences struct {
	HighContrast bool
	FontScale    int // percent
}

func Defaults() Preferences {
	return Preferences{FontScale: DefaultFontScale}
}

// Scale is FontScale as a multiplier.
func (p Preferences) Scale() float32 {
	return float32(p.FontScale) / 100
}

type Settings struct {
	store *Store

	mu    sync.Mutex
	prefs Preferences
	hooks []func(Preferences)
}

// Load reads saved preferences. Missing or malformed values fall back to
// the defaults.
func Load(store *Store) (*Settings, error) {
	p := Defaults()

	v, err := store.Get(KeyHighContrast)
	switch {
	case err == nil:
		p.HighContrast, _ = strconv.ParseBool(v)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	v, err = store.Get(KeyFontSize)
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(v); convErr == nil {
			p.FontScale = clamp(n)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	return &Settings{store: store, prefs: p}, nil
}

func (s *Settings) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// OnChange registers fn to run after every saved change.
func (s *Settings) OnChange(fn func(Preferences)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

func (s *Settings) ToggleContrast() (Preferences, error) {
	return s.update(func(p *Preferences) { p.HighContrast = !p.HighContrast })
}

func (s *Settings) IncreaseFont() (Preferences, error) {
	return s.update(func(p *Preferences) { p.FontScale = clamp(p.FontScale + FontScaleStep) })
}

func (s *Settings) DecreaseFont() (Preferences, error) {
	return s.update(func(p *Preferences) { p.FontScale = clamp(p.FontScale - FontScaleStep) })
}

func (s *Settings) ResetFont() (Preferences, error) {
	return s.update(func(p *Preferences) { p.FontScale = DefaultFontScale })
}

func (s *Settings) update(fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	next := s.prefs
	fn(&next)
	if next == s.prefs {
		s.mu.Unlock()
		return next, nil
	}
	if err := s.save(next); err != nil {
		prev := s.prefs
		s.mu.Unlock()
		return prev, err
	}
	s.prefs = next
	hooks := append([]func(Preferences){}, s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(next)
	}
	return next, nil
}

func (s *Settings) save(p Preferences) error {
	if err := s.store.Set(KeyHighContrast, strconv.FormatBool(p.HighContrast)); err != nil {
		return err
	}
	return s.store.Set(KeyFontSize, strconv.Itoa(p.FontScale))
}

func clamp(n int) int {
	return min(max(n, MinFontScale), MaxFontScale)
}
