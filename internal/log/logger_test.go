// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestReconfigure_WritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "pvremux-test", Version: "v0.0.1"})

	l := WithComponent("engine")
	l.Debug().Msg("probe")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if entry[FieldService] != "pvremux-test" {
		t.Errorf("service = %v", entry[FieldService])
	}
	if entry[FieldComponent] != "engine" {
		t.Errorf("component = %v", entry[FieldComponent])
	}
	if entry[FieldVersion] != "v0.0.1" {
		t.Errorf("version = %v", entry[FieldVersion])
	}
}
