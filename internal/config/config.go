package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port                 string
	DeviceSecret         string
	DatabaseURL          string
	RedisURL             string
	MQTTBrokerURL        string
	MQTTTopic            string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	OpenAIAPIKey         string
	IngestRetryAttempts  int
	LocalTimezone        *time.Location
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	port := getenvDefault("PORT", "8080")
	deviceSecret := os.Getenv("DEVICE_SECRET")
	databaseURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	mqttBrokerURL := os.Getenv("MQTT_BROKER_URL")
	mqttTopic := getenvDefault("MQTT_TOPIC", "medibuddy/events")
	accountSID := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	whatsAppNumber := os.Getenv("TWILIO_WHATSAPP_NUMBER")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	retryAttempts := ParseIntEnv("INGEST_RETRY_ATTEMPTS", 3)
	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Local")

	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	if deviceSecret == "" {
		log.Printf("config: DEVICE_SECRET is empty, device webhook will reject all requests")
	}

	return &Config{
		Port:                 port,
		DeviceSecret:         deviceSecret,
		DatabaseURL:          databaseURL,
		RedisURL:             redisURL,
		MQTTBrokerURL:        mqttBrokerURL,
		MQTTTopic:            mqttTopic,
		TwilioAccountSID:     accountSID,
		TwilioAuthToken:      authToken,
		TwilioWhatsAppNumber: whatsAppNumber,
		OpenAIAPIKey:         openAIKey,
		IngestRetryAttempts:  retryAttempts,
		LocalTimezone:        location,
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}
