// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package trace

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/server"
	"github.com/framegrace/texelway/server/servertest"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := Open(path, Options{BatchSize: 4, BatchTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRecordAndRecent(t *testing.T) {
	s, _ := openStore(t)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		err := s.Record(Entry{
			Time:      base.Add(time.Duration(i) * time.Second),
			Direction: Request,
			Client:    uint32(i%2 + 1),
			Object:    uint32(i),
			Interface: "wl_surface",
			Message:   "commit",
			Args:      []Arg{{Kind: "uint", Value: "7"}},
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries, err := s.Recent(3, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Object != 7 || entries[2].Object != 9 {
		t.Fatalf("expected newest three oldest first, got objects %d..%d", entries[0].Object, entries[2].Object)
	}
	if !entries[2].Time.Equal(base.Add(9 * time.Second)) {
		t.Fatalf("timestamp not preserved: %v", entries[2].Time)
	}
	if len(entries[0].Args) != 1 || entries[0].Args[0].Value != "7" {
		t.Fatalf("args not decoded: %+v", entries[0].Args)
	}

	byClient, err := s.Recent(100, 2)
	if err != nil {
		t.Fatalf("Recent by client: %v", err)
	}
	if len(byClient) != 5 {
		t.Fatalf("expected 5 entries of client 2, got %d", len(byClient))
	}
	for _, e := range byClient {
		if e.Client != 2 {
			t.Fatalf("client filter leaked %+v", e)
		}
	}
}

func TestClosedStoreRejectsRecords(t *testing.T) {
	s, path := openStore(t)
	if err := s.Record(Entry{Time: time.Now(), Direction: Event, Interface: "wl_callback", Message: "done"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Record(Entry{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()
	entries, err := ro.Recent(10, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "done" {
		t.Fatalf("pending entry lost on close: %+v", entries)
	}
}

func TestTracerJournalsServerTraffic(t *testing.T) {
	s, _ := openStore(t)
	srv := server.New(nil, server.Options{Tracer: NewTracer(s)})
	c := servertest.Connect(t, srv)

	cb := c.NewID(protocol.WlCallback)
	c.Send(1, 0, protocol.NewIDArg(cb, protocol.WlCallback))
	servertest.Pump(srv, nil)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries, err := s.Recent(10, uint32(c.ID))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, string(e.Direction)+":"+e.Interface+"."+e.Message)
	}
	want := []string{"request:wl_display.sync", "event:wl_callback.done", "event:wl_display.delete_id"}
	if len(names) != len(want) {
		t.Fatalf("unexpected trace %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("trace[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if entries[0].Args[0].Kind != "new_id" {
		t.Fatalf("unexpected arg kind %q", entries[0].Args[0].Kind)
	}
}
