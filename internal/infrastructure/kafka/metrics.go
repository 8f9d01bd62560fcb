package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_published_total",
		Help: "Messages acknowledged by Kafka",
	}, []string{"topic"})
	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_publish_failures_total",
		Help: "Publishes that failed after exhausting writer attempts",
	}, []string{"topic"})
	messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_consumed_total",
		Help: "Messages handled and committed",
	}, []string{"topic"})
	messagesDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_dead_lettered_total",
		Help: "Messages parked on a dead-letter topic",
	}, []string{"topic"})
)

var handlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bus_handler_retries_total",
	Help: "Handler failures that were retried",
}, []string{"topic"})
