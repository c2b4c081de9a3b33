package mqtt

import "fmt"

func TopicCallEvent(prefix, callID string) string {
	return fmt.Sprintf("%s/call/%s/event", prefix, callID)
}

func TopicHandoff(prefix string) string {
	return fmt.Sprintf("%s/operator/handoff", prefix)
}

func TopicOperatorStatus(prefix string) string {
	return fmt.Sprintf("%s/operator/+/status", prefix)
}

func TopicOperatorHeartbeat(prefix string) string {
	return fmt.Sprintf("%s/operator/+/heartbeat", prefix)
}

func TopicStatus(prefix, operatorID string) string {
	return fmt.Sprintf("%s/operator/%s/status", prefix, operatorID)
}

func TopicHeartbeat(prefix, operatorID string) string {
	return fmt.Sprintf("%s/operator/%s/heartbeat", prefix, operatorID)
}
