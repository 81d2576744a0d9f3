package config

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string

	// RedisURL is optional; when set, rate limiting and promotion grants
	// move to Redis so multiple instances share one view of them.
	RedisURL string

	MediaAPIKey     string
	MediaAPISecret  string
	MediaHost       string
	MediaWebhookKey string

	SendgridAPIKey string
	SenderEmail    string
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	logger := zap.NewExample()
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:             os.Getenv("DB_URI"),
		DatabaseName:    os.Getenv("DB_NAME"),
		BaseURL:         os.Getenv("BASE_URL"),
		Port:            os.Getenv("PORT"),
		RedisURL:        os.Getenv("REDIS_URL"),
		MediaAPIKey:     os.Getenv("MEDIA_API_KEY"),
		MediaAPISecret:  os.Getenv("MEDIA_API_SECRET"),
		MediaHost:       os.Getenv("MEDIA_HOST"),
		MediaWebhookKey: os.Getenv("MEDIA_WEBHOOK_KEY"),
		SendgridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		SenderEmail:     os.Getenv("SENDER_EMAIL"),
	}

}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"response": "%s, %v"}`, message, err)))
	return
}
