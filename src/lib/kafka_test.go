package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKafkaTopic(t *testing.T) {
	assert.Equal(t, "vmp.sse.events", KafkaTopic("vmp:sse:events"))
	assert.Equal(t, "orders_feed", KafkaTopic("orders feed"))
}

func TestKafkaConsumerConfigIsPerInstance(t *testing.T) {
	a := GetKafkaConsumerConfig("localhost:9092", "a")
	b := GetKafkaConsumerConfig("localhost:9092", "b")
	assert.NotEqual(t, a["group.id"], b["group.id"])
	assert.Equal(t, "latest", a["auto.offset.reset"])
}
