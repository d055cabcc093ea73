package retrieval

import "strings"

// DetectDevScaffold scans the message for the configured trigger phrases
// and returns the topic following the first phrase found, trimmed of
// trailing punctuation. The scan follows configuration order, not textual
// position, so an earlier-listed phrase wins even if it appears later in
// the message. This is a cheap substring heuristic, not intent
// classification.
func (a *Aggregator) DetectDevScaffold(message string) (string, bool) {
	lower := strings.ToLower(message)

	for _, trigger := range a.cfg.ScaffoldTriggers {
		idx := strings.Index(lower, trigger)
		if idx < 0 {
			continue
		}
		topic := message[idx+len(trigger):]
		topic = strings.TrimSpace(topic)
		topic = strings.TrimRight(topic, "?.,!")
		topic = strings.TrimSpace(topic)
		if topic != "" {
			return topic, true
		}
	}
	return "", false
}
