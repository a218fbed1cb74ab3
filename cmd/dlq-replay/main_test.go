package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseBrokers(" a:9092, ,b:9092 ,"))
	assert.Empty(t, parseBrokers(""))
}

func TestParseConfig_FromFlags(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=storefront.dlq",
		"-target-topic=storefront.order.events",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, env(nil), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.ReplayConfig{
		SourceTopic: "storefront.dlq",
		TargetTopic: "storefront.order.events",
		Limit:       10,
		Execute:     true,
		FromNewest:  true,
		IdleTimeout: 3 * time.Second,
	}, cfg.replay)
}

func TestParseConfig_DefaultsAndEnvFallback(t *testing.T) {
	cfg, err := parseConfig(nil, env(map[string]string{"STOREFRONT_KAFKA_BROKERS": "kafka:9092"}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.replay.SourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.replay.TargetTopic)
	assert.Equal(t, defaultReplayLimit, cfg.replay.Limit)
	assert.False(t, cfg.replay.Execute)
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"-brokers="}, want: "kafka brokers are required"},
		{args: []string{"-brokers=b:9092", "-source-topic="}, want: "source-topic is required"},
		{args: []string{"-brokers=b:9092", "-target-topic="}, want: "target-topic is required"},
		{args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
		{args: []string{"-unknown"}, want: "flag provided but not defined"},
	}

	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			_, err := parseConfig(tc.args, env(nil), io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
