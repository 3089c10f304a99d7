package revise

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"screentrace/internal/storage"
)

// Entity types assigned to deterministically derived endpoints.
const (
	entityApp      = "app"
	entityDomain   = "domain"
	entityDocument = "document"
	entityMedia    = "media"
)

// DerivedEdge is one deterministic edge before entity resolution. Endpoints
// are (type, name) pairs; the daily job resolves them to entity ids.
type DerivedEdge struct {
	FromType        string
	FromName        string
	ToType          string
	ToName          string
	EdgeType        string
	Weight          float64 // hours
	EvidenceNoteIDs []string
}

type span struct {
	start, end int64
}

func (s span) overlap(o span) int64 {
	start := s.start
	if o.start > start {
		start = o.start
	}
	end := s.end
	if o.end < end {
		end = o.end
	}
	if end <= start {
		return 0
	}
	return end - start
}

// DeriveEdges computes the deterministic edges for one day from sealed
// events and media snapshots. Pure: the same inputs always produce the same
// edges in the same order, so re-running a day is an idempotent upsert.
//
// Derivations:
//
//	VISITED_DOMAIN  app → domain      hours the domain was foreground
//	LISTENED_TO     app → track       hours the track was playing
//	USED_APP        document → app    hours the document was open
//	STUDIED_WHILE   document → track  overlap of reading and playback
//
// CO_OCCURRED_WITH is not derived here: the loop keeps a single foreground
// event open at a time, so spans never overlap in the event table. That
// relationship comes from the model's day synthesis instead.
func DeriveEdges(events []storage.Event, nowPlaying []storage.NowPlayingSnapshot, dayEnd int64, hourNotes []storage.NoteRecord) []DerivedEdge {
	type edgeKey struct {
		fromType, fromName, toType, toName, edgeType string
	}
	acc := make(map[edgeKey]*DerivedEdge)

	add := func(fromType, fromName, toType, toName, edgeType string, seconds int64, sp span) {
		if seconds <= 0 || fromName == "" || toName == "" {
			return
		}
		k := edgeKey{fromType, fromName, toType, toName, edgeType}
		e, ok := acc[k]
		if !ok {
			e = &DerivedEdge{
				FromType: fromType, FromName: fromName,
				ToType: toType, ToName: toName,
				EdgeType: edgeType,
			}
			acc[k] = e
		}
		e.Weight += float64(seconds) / 3600
		for _, n := range hourNotes {
			if sp.overlap(span{n.StartTS, n.EndTS}) > 0 {
				e.EvidenceNoteIDs = appendUnique(e.EvidenceNoteIDs, n.ID)
			}
		}
	}

	// Media playback spans: each snapshot holds until the next one.
	type playback struct {
		span  span
		track string
		app   string
	}
	var plays []playback
	for i, np := range nowPlaying {
		end := dayEnd
		if i+1 < len(nowPlaying) {
			end = nowPlaying[i+1].TS
		}
		plays = append(plays, playback{
			span:  span{np.TS, end},
			track: fmt.Sprintf("%s — %s", np.Title, np.Artist),
			app:   np.App,
		})
	}

	for _, e := range events {
		dur := e.EndTS - e.StartTS
		sp := span{e.StartTS, e.EndTS}

		if domain := domainOf(e.URL); domain != "" {
			add(entityApp, e.AppName, entityDomain, domain, storage.EdgeVisitedDomain, dur, sp)
		}
		if e.DocPath != "" {
			doc := filepath.Base(e.DocPath)
			add(entityDocument, doc, entityApp, e.AppName, storage.EdgeUsedApp, dur, sp)
			for _, p := range plays {
				if ov := sp.overlap(p.span); ov > 0 {
					add(entityDocument, doc, entityMedia, p.track, storage.EdgeStudiedWhile, ov, sp)
				}
			}
		}
	}

	for _, p := range plays {
		add(entityApp, p.app, entityMedia, p.track, storage.EdgeListenedTo, p.span.end-p.span.start, p.span)
	}

	edges := make([]DerivedEdge, 0, len(acc))
	for _, e := range acc {
		sort.Strings(e.EvidenceNoteIDs)
		edges = append(edges, *e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.EdgeType != b.EdgeType {
			return a.EdgeType < b.EdgeType
		}
		if a.FromName != b.FromName {
			return a.FromName < b.FromName
		}
		return a.ToName < b.ToName
	})
	return edges
}

// domainOf extracts the host from a URL, dropping scheme, port, path and a
// leading www.
func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(strings.ToLower(s), "www.")
	return s
}

func appendUnique(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
