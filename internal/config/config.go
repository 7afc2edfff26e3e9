package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig is the environment-driven configuration of callscript-server.
// DB_DSN and MQTT_BROKER_URL are optional: without a DSN stats and queues
// live in memory, without a broker calls run against the simulated media
// layer only.
type ServerConfig struct {
	HTTPAddr        string
	DBDSN           string
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	SpeechWSBaseURL string
	OutputEntities  []string
	DefaultChannel  string
	DefaultPrefix   string
	EntryPoint      string
	PlayTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        getenvDefault("CALLSCRIPT_HTTP_ADDR", ":9040"),
		DBDSN:           os.Getenv("DB_DSN"),
		MQTTBrokerURL:   os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:    getenvDefault("CALLSCRIPT_MQTT_CLIENT_ID", "callscript-server"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "callscript"),
		SpeechWSBaseURL: os.Getenv("SPEECH_WS_BASE_URL"),
		OutputEntities:  splitCSV(os.Getenv("OUTPUT_ENTITIES")),
		DefaultChannel:  getenvDefault("CALL_CHANNEL", "default"),
		DefaultPrefix:   os.Getenv("MSISDN_PREFIX"),
		EntryPoint:      getenvDefault("SCRIPT_ENTRY_POINT", "hello_main"),
		PlayTimeout:     time.Duration(getenvIntDefault("PLAY_TIMEOUT_SECONDS", 30)) * time.Second,
		ShutdownTimeout: time.Duration(getenvIntDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}
