package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	// Set formatter based on environment
	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.SetOutput(os.Stdout)

	// Store global logger reference
	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithComponent creates a logger with engine component context
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithSeason creates a logger with season context
func WithSeason(season string) *logrus.Entry {
	return GetLogger().WithField("season", season)
}

// WithMatchup creates a logger with matchup context
func WithMatchup(home, away, season, date string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"home":   home,
		"away":   away,
		"season": season,
		"date":   date,
	})
}

// WithBatchRun creates a logger with batch run context
func WithBatchRun(runID string) *logrus.Entry {
	return GetLogger().WithField("batch_run_id", runID)
}

// WithTeamSeason creates a logger with team and season context
func WithTeamSeason(team, season string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"team":   team,
		"season": season,
	})
}
