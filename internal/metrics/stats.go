package metrics

import (
	"math"
	"sort"
	"time"

	"udpwatch/internal/model"
)

// Summary is a per-channel statistics snapshot over a window.
type Summary struct {
	Channel     string
	Count       int
	From        time.Time
	To          time.Time
	Counts      map[model.OutcomeKind]int
	LastOutcome model.OutcomeKind
	LastPID     int
	AvgDuration time.Duration
	P95Duration time.Duration
}

// Summarize groups records at or after since by channel. The result is
// sorted by channel name.
func Summarize(items []model.HistoryRecord, since time.Time) []Summary {
	byChannel := map[string][]model.HistoryRecord{}
	for _, r := range items {
		if r.Timestamp.Before(since) {
			continue
		}
		byChannel[r.Channel] = append(byChannel[r.Channel], r)
	}

	out := make([]Summary, 0, len(byChannel))
	for channel, records := range byChannel {
		out = append(out, summarizeChannel(channel, records))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func summarizeChannel(channel string, records []model.HistoryRecord) Summary {
	s := Summary{
		Channel: channel,
		Count:   len(records),
		From:    records[0].Timestamp,
		To:      records[0].Timestamp,
		Counts:  map[model.OutcomeKind]int{},
	}

	values := make([]float64, 0, len(records))
	var sum float64
	var last model.HistoryRecord
	for _, r := range records {
		s.Counts[r.Outcome]++
		ms := float64(r.Duration.Milliseconds())
		values = append(values, ms)
		sum += ms
		if r.Timestamp.Before(s.From) {
			s.From = r.Timestamp
		}
		if !r.Timestamp.Before(s.To) {
			s.To = r.Timestamp
			last = r
		}
	}
	s.LastOutcome = last.Outcome
	s.LastPID = last.PID

	sort.Float64s(values)
	s.AvgDuration = time.Duration(sum/float64(len(values))) * time.Millisecond
	s.P95Duration = time.Duration(percentile(values, 0.95)) * time.Millisecond
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
