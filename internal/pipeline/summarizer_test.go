package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrequencySummarizer(t *testing.T) {
	text := "Kafka brokers store messages. Kafka consumers read messages from brokers. " +
		"The weather is nice. Kafka producers write messages to brokers. Lunch was good."

	s := NewFrequencySummarizer(3, 5)
	sum := s.Summarize(text)
	assert.Equal(t, "Kafka brokers store messages. Kafka consumers read messages from brokers. Kafka producers write messages to brokers.", sum.Text)
	assert.Equal(t, []string{"kafka", "brokers", "messages", "store", "consumers"}, sum.KeyPoints)
}

func TestFrequencySummarizerShortText(t *testing.T) {
	s := NewFrequencySummarizer(3, 5)
	assert.Equal(t, "Only one sentence here.", s.Summarize("  Only one sentence\n here.  ").Text)
	assert.Equal(t, Summary{}, s.Summarize("   "))
}
