// Package events delivers notification events to subscribers, either
// in-process through a Bus or from a Kafka topic through a KafkaSource.
package events
