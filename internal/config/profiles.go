// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strconv"
	"strings"
)

// Profile key prefixes and threshold keys.
const (
	KeyCopyRemux               = "CopyRemux"
	KeySlowRemux               = "SlowRemux"
	KeyDropThreshold           = "RemuxDropThreshold"
	KeyDuplicateThreshold      = "RemuxDuplicateThreshold"
	KeyForceNativeExtraction   = "ForceNativeExtraction"
	DefaultFrameWarnThreshold  = 3.0
	maxNumberedProfileTemplate = 64
)

// ProfileSet is one named section of raw parameter templates and thresholds.
type ProfileSet struct {
	Name   string
	values map[string]string
}

// NewProfileSet copies values into a new profile.
func NewProfileSet(name string, values map[string]string) ProfileSet {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return ProfileSet{Name: name, values: cp}
}

// Get returns the trimmed value for key, or "".
func (p ProfileSet) Get(key string) string {
	return strings.TrimSpace(p.values[key])
}

// NumberedTemplate is one entry of a numbered template list.
type NumberedTemplate struct {
	Key      string
	Template string
}

// Numbered returns prefix0, prefix1, ... stopping at the first missing or empty key.
func (p ProfileSet) Numbered(prefix string) []NumberedTemplate {
	var out []NumberedTemplate
	for i := 0; i < maxNumberedProfileTemplate; i++ {
		key := prefix + strconv.Itoa(i)
		v := p.Get(key)
		if v == "" {
			break
		}
		out = append(out, NumberedTemplate{Key: key, Template: v})
	}
	return out
}

// Float parses key as float64, returning def when missing or malformed.
func (p ProfileSet) Float(key string, def float64) float64 {
	v := p.Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Bool parses key as a boolean ("true", "1", "yes"), returning def when missing.
func (p ProfileSet) Bool(key string, def bool) bool {
	switch strings.ToLower(p.Get(key)) {
	case "":
		return def
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

// defaultProfileValues is the built-in profile used when the file defines none.
func defaultProfileValues() map[string]string {
	return map[string]string{
		"CopyRemux0": "-fflags +genpts -i <source> -map 0 -c copy -f mpegts",
		"CopyRemux1": "-fflags +genpts+igndts+discardcorrupt -err_detect ignore_err -i <source> -map 0 -c copy -f mpegts",
		"SlowRemux0": "-fflags +genpts -i <source> -map 0 -c:v libx264 -preset veryfast -crf 18 -r auto -c:a copy -c:s copy -f mpegts",
		"SlowRemux1": "-fflags +genpts+discardcorrupt -i <source> -map 0:v:0 -map 0:a -c:v libx264 -preset veryfast -crf 18 -r auto -c:a ac3 -b:a 384k -f mpegts",

		KeyDropThreshold:         "3.0",
		KeyDuplicateThreshold:    "3.0",
		KeyForceNativeExtraction: "false",
	}
}
