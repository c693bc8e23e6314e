// Package stats aggregates statistics over the normalized conversation
// model: volume, temporal activity patterns, message lengths, and response
// behaviour. It is a pure consumer of the model with no state of its own.
package stats

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

// maxResponseGap caps what counts as a "response". Conversations on
// social platforms resume after days, but a month-long gap is a new
// exchange, not a reply.
const maxResponseGap = 30 * 24 * time.Hour

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// Stats is the aggregate over a set of conversations.
type Stats struct {
	TotalMessages      int                `json:"total_messages"`
	ConversationCount  int                `json:"conversation_count"`
	MessagesPerSender  map[string]int     `json:"messages_per_sender"`
	MessagesByHour     [24]int            `json:"messages_by_hour"`
	MessagesByWeekday  [7]int             `json:"messages_by_weekday"`
	AvgLengthPerSender map[string]float64 `json:"avg_length_per_sender"`
	OverallAvgLength   float64            `json:"overall_avg_length"`
	AvgResponseMinutes map[string]float64 `json:"avg_response_minutes"`
	FirstMessage       time.Time          `json:"first_message"`
	LastMessage        time.Time          `json:"last_message"`
	MostActiveHour     int                `json:"most_active_hour"`
	MostActiveWeekday  time.Weekday       `json:"most_active_weekday"`
	MostProlificSender string             `json:"most_prolific_sender"`
	FastestResponder   string             `json:"fastest_responder"`
}

// Calculate aggregates statistics across the given conversations. Error
// conversations (empty message lists) contribute to the conversation
// count only.
func Calculate(convs []model.Conversation) Stats {
	s := Stats{
		ConversationCount:  len(convs),
		MessagesPerSender:  make(map[string]int),
		AvgLengthPerSender: make(map[string]float64),
		AvgResponseMinutes: make(map[string]float64),
	}

	lengths := make(map[string][]int)
	responses := make(map[string][]float64)

	for _, conv := range convs {
		msgs := conv.Messages
		for i, m := range msgs {
			s.TotalMessages++
			s.MessagesPerSender[m.SenderID]++

			if !m.Timestamp.IsZero() {
				s.MessagesByHour[m.Timestamp.Hour()]++
				s.MessagesByWeekday[int(m.Timestamp.Weekday())]++
				if s.FirstMessage.IsZero() || m.Timestamp.Before(s.FirstMessage) {
					s.FirstMessage = m.Timestamp
				}
				if m.Timestamp.After(s.LastMessage) {
					s.LastMessage = m.Timestamp
				}
			}

			lengths[m.SenderID] = append(lengths[m.SenderID], len(cleanText(m.Text)))

			// A sender change within the gap window counts as a
			// response by the later sender.
			if i > 0 && msgs[i-1].SenderID != m.SenderID {
				gap := m.Timestamp.Sub(msgs[i-1].Timestamp)
				if gap >= 0 && gap <= maxResponseGap {
					responses[m.SenderID] = append(responses[m.SenderID], gap.Minutes())
				}
			}
		}
	}

	var all int
	var allCount int
	for sender, ls := range lengths {
		sum := 0
		for _, l := range ls {
			sum += l
		}
		s.AvgLengthPerSender[sender] = float64(sum) / float64(len(ls))
		all += sum
		allCount += len(ls)
	}
	if allCount > 0 {
		s.OverallAvgLength = float64(all) / float64(allCount)
	}

	for sender, rs := range responses {
		sum := 0.0
		for _, r := range rs {
			sum += r
		}
		s.AvgResponseMinutes[sender] = sum / float64(len(rs))
	}

	s.MostActiveHour = maxIndex(s.MessagesByHour[:])
	s.MostActiveWeekday = time.Weekday(maxIndex(s.MessagesByWeekday[:]))
	s.MostProlificSender = maxCountKey(s.MessagesPerSender)
	s.FastestResponder = minValueKey(s.AvgResponseMinutes)

	return s
}

// TopSenders returns up to limit senders ordered by descending message
// count, ties broken by identifier.
func (s Stats) TopSenders(limit int) []SenderCount {
	out := make([]SenderCount, 0, len(s.MessagesPerSender))
	for sender, count := range s.MessagesPerSender {
		out = append(out, SenderCount{Sender: sender, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sender < out[j].Sender
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SenderCount pairs a participant with a message count.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// cleanText strips URLs and collapses whitespace before measuring length,
// so link-heavy messages do not skew the averages.
func cleanText(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func maxIndex(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func maxCountKey(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := ""
	bestCount := -1
	for _, k := range keys {
		if m[k] > bestCount {
			best = k
			bestCount = m[k]
		}
	}
	return best
}

func minValueKey(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := ""
	bestVal := 0.0
	for _, k := range keys {
		if best == "" || m[k] < bestVal {
			best = k
			bestVal = m[k]
		}
	}
	return best
}
