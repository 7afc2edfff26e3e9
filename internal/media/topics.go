package media

import (
	"fmt"
	"strings"
)

func TopicPlay(prefix, callID, requestID string) string {
	return fmt.Sprintf("%s/call/%s/play/%s", prefix, callID, requestID)
}

func TopicPlayed(prefix string) string {
	return fmt.Sprintf("%s/call/+/played/+", prefix)
}

func TopicSpeech(prefix string) string {
	return fmt.Sprintf("%s/call/+/speech", prefix)
}

func TopicControl(prefix, callID, command string) string {
	return fmt.Sprintf("%s/call/%s/ctl/%s", prefix, callID, command)
}

// ParseCallID extracts the call ID from {prefix}/call/{callID}/{kind}/...
func ParseCallID(topic, prefix string) (string, error) {
	parts := strings.Split(topic, "/")
	prefixParts := strings.Split(prefix, "/")
	if len(parts) < len(prefixParts)+3 {
		return "", fmt.Errorf("invalid topic: %s", topic)
	}
	for i, p := range prefixParts {
		if parts[i] != p {
			return "", fmt.Errorf("topic prefix mismatch: %s", topic)
		}
	}
	if parts[len(prefixParts)] != "call" {
		return "", fmt.Errorf("invalid topic pattern: %s", topic)
	}
	return parts[len(prefixParts)+1], nil
}

func ParseRequestID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
