package revise

import (
	"reflect"
	"testing"

	"screentrace/internal/storage"
)

func TestDomainOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://go.dev/doc/effective_go", "go.dev"},
		{"http://www.example.com/page?q=1", "example.com"},
		{"https://Example.COM:8443/x", "example.com"},
		{"localhost:3000/app", "localhost"},
		{"https://news.ycombinator.com", "news.ycombinator.com"},
	}
	for _, tt := range tests {
		if got := domainOf(tt.in); got != tt.want {
			t.Errorf("domainOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveEdges_DomainAndAppUsage(t *testing.T) {
	events := []storage.Event{
		{ID: "e1", MonitorID: 1, AppName: "Firefox", URL: "https://go.dev/doc", StartTS: 0, EndTS: 1800},
		{ID: "e2", MonitorID: 1, AppName: "Firefox", URL: "https://go.dev/blog", StartTS: 1800, EndTS: 3600},
		{ID: "e3", MonitorID: 1, AppName: "Preview", DocPath: "/papers/raft.pdf", StartTS: 3600, EndTS: 5400},
	}
	notes := []storage.NoteRecord{
		{ID: "n1", StartTS: 0, EndTS: 3600},
		{ID: "n2", StartTS: 3600, EndTS: 7200},
	}

	edges := DeriveEdges(events, nil, 86400, notes)

	var visited, used *DerivedEdge
	for i := range edges {
		switch edges[i].EdgeType {
		case storage.EdgeVisitedDomain:
			visited = &edges[i]
		case storage.EdgeUsedApp:
			used = &edges[i]
		}
	}

	if visited == nil {
		t.Fatal("no VISITED_DOMAIN edge derived")
	}
	// Two half-hour visits to the same domain accumulate into one edge.
	if visited.FromName != "Firefox" || visited.ToName != "go.dev" {
		t.Errorf("VISITED_DOMAIN endpoints = %s -> %s", visited.FromName, visited.ToName)
	}
	if visited.Weight != 1.0 {
		t.Errorf("VISITED_DOMAIN weight = %v hours, want 1.0", visited.Weight)
	}
	if !reflect.DeepEqual(visited.EvidenceNoteIDs, []string{"n1"}) {
		t.Errorf("VISITED_DOMAIN evidence = %v, want [n1]", visited.EvidenceNoteIDs)
	}

	if used == nil {
		t.Fatal("no USED_APP edge derived")
	}
	if used.FromName != "raft.pdf" || used.ToName != "Preview" {
		t.Errorf("USED_APP endpoints = %s -> %s", used.FromName, used.ToName)
	}
	if used.Weight != 0.5 {
		t.Errorf("USED_APP weight = %v hours, want 0.5", used.Weight)
	}
	if !reflect.DeepEqual(used.EvidenceNoteIDs, []string{"n2"}) {
		t.Errorf("USED_APP evidence = %v, want [n2]", used.EvidenceNoteIDs)
	}
}

func TestDeriveEdges_Playback(t *testing.T) {
	events := []storage.Event{
		{ID: "e1", MonitorID: 1, AppName: "Preview", DocPath: "/papers/raft.pdf", StartTS: 0, EndTS: 3600},
	}
	nowPlaying := []storage.NowPlayingSnapshot{
		{TS: 0, Title: "Track A", Artist: "Artist", App: "Music"},
		{TS: 1800, Title: "Track B", Artist: "Artist", App: "Music"},
	}

	edges := DeriveEdges(events, nowPlaying, 3600, nil)

	byType := map[string][]DerivedEdge{}
	for _, e := range edges {
		byType[e.EdgeType] = append(byType[e.EdgeType], e)
	}

	listened := byType[storage.EdgeListenedTo]
	if len(listened) != 2 {
		t.Fatalf("got %d LISTENED_TO edges, want 2", len(listened))
	}
	// Each snapshot holds until the next one, the last until day end.
	for _, e := range listened {
		if e.Weight != 0.5 {
			t.Errorf("LISTENED_TO %s weight = %v hours, want 0.5", e.ToName, e.Weight)
		}
	}

	studied := byType[storage.EdgeStudiedWhile]
	if len(studied) != 2 {
		t.Fatalf("got %d STUDIED_WHILE edges, want 2", len(studied))
	}
	if studied[0].FromName != "raft.pdf" {
		t.Errorf("STUDIED_WHILE from = %s, want raft.pdf", studied[0].FromName)
	}
}

func TestDeriveEdges_CoOccurrenceIsModelTerritory(t *testing.T) {
	// Foreground spans are sealed on every transition, so even events on
	// different monitors describe consecutive attention, not simultaneous
	// use. No CO_OCCURRED_WITH edge is derived; the day synthesis proposes
	// those with its own evidence.
	events := []storage.Event{
		{ID: "e1", MonitorID: 1, AppName: "Zed", StartTS: 0, EndTS: 1800},
		{ID: "e2", MonitorID: 2, AppName: "Anki", StartTS: 1800, EndTS: 3600},
		{ID: "e3", MonitorID: 1, AppName: "Zed", StartTS: 3600, EndTS: 5400},
	}
	for _, e := range DeriveEdges(events, nil, 86400, nil) {
		if e.EdgeType == storage.EdgeCoOccurred {
			t.Errorf("derived a co-occurrence edge: %+v", e)
		}
	}
}

func TestDeriveEdges_DeterministicOutput(t *testing.T) {
	events := []storage.Event{
		{ID: "e1", MonitorID: 1, AppName: "Firefox", URL: "https://go.dev", StartTS: 0, EndTS: 1000},
		{ID: "e2", MonitorID: 2, AppName: "Zed", StartTS: 500, EndTS: 2000},
		{ID: "e3", MonitorID: 1, AppName: "Preview", DocPath: "/x/a.pdf", StartTS: 1000, EndTS: 3000},
	}
	nowPlaying := []storage.NowPlayingSnapshot{
		{TS: 0, Title: "T", Artist: "A", App: "Music"},
	}
	notes := []storage.NoteRecord{{ID: "n1", StartTS: 0, EndTS: 3600}}

	base := DeriveEdges(events, nowPlaying, 3600, notes)
	for i := 0; i < 5; i++ {
		if again := DeriveEdges(events, nowPlaying, 3600, notes); !reflect.DeepEqual(base, again) {
			t.Fatalf("run %d produced different edges", i)
		}
	}
}
