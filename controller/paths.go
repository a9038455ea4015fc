package controller

import "fmt"

// Metadata store paths this core consumes.
const (
	brokerTopicsPath    = "/brokers/topics"
	controllerEpochPath = "/controller_epoch"
)

func topicPath(topic string) string {
	return fmt.Sprintf("%s/%s", brokerTopicsPath, topic)
}

func partitionsPath(topic string) string {
	return fmt.Sprintf("%s/%s/partitions", brokerTopicsPath, topic)
}

func partitionStatePath(topic string, partition int32) string {
	return fmt.Sprintf("%s/%d/state", partitionsPath(topic), partition)
}
