// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package params expands configured command-line templates into argv.
//
// Supported tokens:
//
//	<source>   source file path (normally after -i)
//	<output>   output path; appended as the last argument when absent
//	<workdir>  job work directory
//	<base>     source base name without extension
//	<key>      decryption key material (helper tools only)
//	<kinds>    requested stream kinds, e.g. "video,audio"
//	-r auto    replaced by the detected frame rate, dropped when unknown
//
// Tokens may appear inside a larger argument ("<workdir>/<base>.idx").
package params

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnterminatedQuote is returned by Split for an odd number of quotes.
var ErrUnterminatedQuote = errors.New("unterminated quote in template")

// Values feeds Expand.
type Values struct {
	Source  string
	Output  string
	WorkDir string
	Base    string
	Key     string
	Kinds   string
	FPS     float64
}

// Split tokenizes a template on whitespace, honouring double quotes.
func Split(template string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range template {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, ErrUnterminatedQuote
	}
	if started {
		out = append(out, cur.String())
	}
	return out, nil
}

// Expand turns a template into argv.
func Expand(template string, v Values) ([]string, error) {
	tokens, err := Split(template)
	if err != nil {
		return nil, err
	}
	rep := strings.NewReplacer(
		"<source>", v.Source,
		"<output>", v.Output,
		"<workdir>", v.WorkDir,
		"<base>", v.Base,
		"<key>", v.Key,
		"<kinds>", v.Kinds,
	)

	args := make([]string, 0, len(tokens)+1)
	hasOutput := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "-r" && i+1 < len(tokens) && strings.EqualFold(tokens[i+1], "auto") {
			i++
			if v.FPS > 0 {
				args = append(args, "-r", FormatFPS(v.FPS))
			}
			continue
		}
		if strings.Contains(tok, "<output>") {
			hasOutput = true
		}
		args = append(args, rep.Replace(tok))
	}
	if !hasOutput && v.Output != "" {
		args = append(args, v.Output)
	}
	return args, nil
}

// FormatFPS renders a rate with at most three decimals: 29.97, 25.
func FormatFPS(fps float64) string {
	return strconv.FormatFloat(math.Round(fps*1000)/1000, 'f', -1, 64)
}

// SkippedSeconds reports a leading "-ss" given before the first input.
func SkippedSeconds(args []string) float64 {
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-i":
			return 0
		case "-ss":
			s, err := ParseTimestamp(args[i+1])
			if err != nil {
				return 0
			}
			return s
		}
	}
	return 0
}

// ParseTimestamp accepts seconds ("12.5") or [HH:]MM:SS[.ms].
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty timestamp")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

var mapAll = map[string]bool{
	"0": true, "0?": true,
	"0:a": true, "0:a?": true,
	"0:v": true, "0:v?": true,
}

// StripMapAll removes every "-map" that selects a whole stream class of
// input 0. Explicit per-stream maps are kept.
func StripMapAll(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-map" && i+1 < len(args) && mapAll[args[i+1]] {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// RemoveMaps drops "-map 0:<stream>" for the given stream indices.
func RemoveMaps(args []string, streams ...int) []string {
	drop := make(map[string]bool, len(streams))
	for _, s := range streams {
		drop["0:"+strconv.Itoa(s)] = true
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-map" && i+1 < len(args) && drop[args[i+1]] {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// InsertMaps adds "-map 0:<stream>" for each index right after the last
// input. Negative indices are skipped.
func InsertMaps(args []string, streams ...int) []string {
	var maps []string
	for _, s := range streams {
		if s < 0 {
			continue
		}
		maps = append(maps, "-map", "0:"+strconv.Itoa(s))
	}
	if len(maps) == 0 {
		return append([]string(nil), args...)
	}
	at := 0
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			at = i + 2
		}
	}
	out := make([]string, 0, len(args)+len(maps))
	out = append(out, args[:at]...)
	out = append(out, maps...)
	return append(out, args[at:]...)
}
