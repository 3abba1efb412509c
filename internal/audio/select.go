// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audio picks the audio track a remux should keep and repairs
// parameter sets whose output would carry a zero-channel track.
package audio

import (
	"strings"

	"github.com/ManuGH/pvremux/internal/media"
	"golang.org/x/text/language"
)

// ShouldScore reports whether proactive selection applies: more than one
// track and either a language request or at least one impaired track.
func ShouldScore(tracks []media.AudioTrack, lang string) bool {
	if len(tracks) <= 1 {
		return false
	}
	if strings.TrimSpace(lang) != "" {
		return true
	}
	for _, t := range tracks {
		if t.Impaired {
			return true
		}
	}
	return false
}

// Select returns the preferred track in a single scan. Only tracks with
// channels qualify, and when lang is set only tracks in that language.
// Non-impaired beats impaired, then more channels wins; ties keep the
// earlier track.
func Select(tracks []media.AudioTrack, lang string) (media.AudioTrack, bool) {
	best := -1
	for i, t := range tracks {
		if t.Channels <= 0 {
			continue
		}
		if lang != "" && !MatchLanguage(lang, t.Language) {
			continue
		}
		if best < 0 || better(t, tracks[best]) {
			best = i
		}
	}
	if best < 0 {
		return media.AudioTrack{}, false
	}
	return tracks[best], true
}

func better(a, b media.AudioTrack) bool {
	if a.Impaired != b.Impaired {
		return !a.Impaired
	}
	return a.Channels > b.Channels
}

// MatchLanguage compares ISO 639 codes by base language, so "eng", "en"
// and "en-US" all match. Unparseable tags fall back to a case-insensitive
// string compare.
func MatchLanguage(want, have string) bool {
	want, have = strings.TrimSpace(want), strings.TrimSpace(have)
	if want == "" || have == "" {
		return false
	}
	if strings.EqualFold(want, have) {
		return true
	}
	wt, err1 := language.Parse(want)
	ht, err2 := language.Parse(have)
	if err1 != nil || err2 != nil {
		return false
	}
	wb, wc := wt.Base()
	hb, hc := ht.Base()
	if wc == language.No || hc == language.No {
		return false
	}
	return wb == hb
}
