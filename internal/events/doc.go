// Package events publishes run lifecycle events to Kafka.
//
// Every analysis run emits run.started when discovery begins and exactly one of
// run.completed or run.failed after its final state has been recorded. Messages are keyed
// by run ID so all events of one run land on the same partition in order.
package events
