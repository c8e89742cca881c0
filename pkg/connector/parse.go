package connector

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing portal dates. Brazilian portals
// render DD/MM/YYYY; ISO shows up in data attributes.
var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
}

// ParseAmount parses a pt-BR formatted monetary string such as "1.234,56" or
// "R$ 1.234,56" into its numeric value. Returns nil for blank or malformed
// input; extraction never fails a whole row over one bad cell.
func ParseAmount(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}

	// Dots group thousands, the comma is the decimal separator
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}

	return &value
}

// ParseDate parses a portal date, DD/MM/YYYY first. Returns nil for blank or
// malformed input. The result is a UTC midnight timestamp; portals carry
// calendar dates, not instants.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}

	return nil
}

// GuessMimeType maps a downloaded filename onto a content type
func GuessMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
