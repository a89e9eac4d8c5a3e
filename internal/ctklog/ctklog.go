// Package ctklog centralizes logrus setup for the module, mirroring
// dimajix-llm-monitor's internal/logging.go.
package ctklog

import "github.com/sirupsen/logrus"

// Config controls the process-wide log format.
type Config struct {
	Format string `yaml:"format"`
}

// Init sets the global logrus level to Info and picks the formatter from
// cfg.Format ("json" for JSON, anything else for text).
func Init(cfg Config) {
	logrus.SetLevel(logrus.InfoLevel)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
}
