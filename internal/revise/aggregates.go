package revise

import (
	"encoding/json"
	"sort"

	"screentrace/internal/llm"
	"screentrace/internal/storage"
)

// Aggregate key types.
const (
	keyApp    = "app"
	keyDomain = "domain"
	keyTopic  = "topic"
	keyMedia  = "media"
)

// ComputeDayAggregates rolls one day up into per-key totals: hours per app,
// hours per domain, hours per media track, and topic mention counts across
// the day's hourly notes. Pure and always recomputable from its inputs.
func ComputeDayAggregates(dayStart, dayEnd int64, events []storage.Event, nowPlaying []storage.NowPlayingSnapshot, hourNotes []storage.NoteRecord) []storage.Aggregate {
	apps := make(map[string]float64)
	domains := make(map[string]float64)
	media := make(map[string]float64)
	topics := make(map[string]float64)

	for _, e := range events {
		hours := float64(e.EndTS-e.StartTS) / 3600
		if e.AppName != "" {
			apps[e.AppName] += hours
		}
		if d := domainOf(e.URL); d != "" {
			domains[d] += hours
		}
	}

	for i, np := range nowPlaying {
		end := dayEnd
		if i+1 < len(nowPlaying) {
			end = nowPlaying[i+1].TS
		}
		if end > np.TS {
			media[np.Title+" — "+np.Artist] += float64(end-np.TS) / 3600
		}
	}

	for _, n := range hourNotes {
		var s llm.HourSummaryV1
		if err := json.Unmarshal([]byte(n.JSONPayload), &s); err != nil {
			continue
		}
		for _, t := range s.Topics {
			topics[t]++
		}
	}

	var aggs []storage.Aggregate
	emit := func(keyType string, m map[string]float64) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			aggs = append(aggs, storage.Aggregate{
				PeriodType:    "day",
				PeriodStartTS: dayStart,
				PeriodEndTS:   dayEnd,
				KeyType:       keyType,
				Key:           k,
				ValueNum:      m[k],
			})
		}
	}
	emit(keyApp, apps)
	emit(keyDomain, domains)
	emit(keyTopic, topics)
	emit(keyMedia, media)
	return aggs
}
