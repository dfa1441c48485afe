// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/framegrace/texelway/internal/trace"
)

func sampleEntries() []trace.Entry {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []trace.Entry{
		{Seq: 1, Time: at, Direction: trace.Request, Client: 3, Object: 1, Interface: "wl_display", Message: "sync",
			Args: []trace.Arg{{Kind: "new_id", Value: "new id 2"}}},
		{Seq: 2, Time: at, Direction: trace.Event, Client: 3, Object: 2, Interface: "wl_callback", Message: "done",
			Args: []trace.Arg{{Kind: "uint", Value: "7"}}},
	}
}

func TestWriteTextFormatsDirection(t *testing.T) {
	var buf bytes.Buffer
	if err := writeText(&buf, sampleEntries()); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "-> wl_display@1.sync(new id 2)") {
		t.Fatalf("unexpected request line %q", lines[0])
	}
	if !strings.Contains(lines[1], "<- wl_callback@2.done(7)") {
		t.Fatalf("unexpected event line %q", lines[1])
	}
}

func TestWriteJSONPlainIsValid(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, sampleEntries(), false, defaultStyleName); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded []trace.Entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Message != "done" {
		t.Fatalf("unexpected entries %+v", decoded)
	}
}

func TestWriteJSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, nil, false, defaultStyleName); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}
}

func TestWriteJSONHighlighted(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, sampleEntries(), true, "no-such-style"); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected ANSI escapes in highlighted output")
	}
	if !strings.Contains(out, "wl_callback") {
		t.Fatalf("highlighting lost content: %q", out)
	}
}

func TestRunReadsJournal(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "trace.db")
	store, err := trace.Open(db, trace.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, e := range sampleEntries() {
		if err := store.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := os.Create(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer out.Close()
	if err := run([]string{"--db", db, "--format", "text", "--client", "3"}, out); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "wl_display@1.sync") {
		t.Fatalf("journal entry missing from output: %q", data)
	}
	if err := run([]string{"--limit", "1"}, out); err == nil {
		t.Fatalf("expected error without --db")
	}
}
