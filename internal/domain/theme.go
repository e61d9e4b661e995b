package domain

import "strings"

// Theme is the visitor's colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme maps a stored value to a Theme, falling back to light for anything unknown.
func ParseTheme(raw string) Theme {
	if Theme(strings.ToLower(strings.TrimSpace(raw))) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// IsDark reports whether the dark scheme is active.
func (t Theme) IsDark() bool {
	return t == ThemeDark
}
