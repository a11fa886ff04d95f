package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// In production (ENVIRONMENT=production) it uses JSON output for log
// aggregation. Otherwise it uses the human-readable text formatter.
func Init(environment string) {
	if strings.ToLower(environment) == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// WithCompany returns a logger with the tenant field attached.
// Use this for all logging within a company-scoped operation.
func WithCompany(company string) *logrus.Entry {
	return logrus.WithField("company", company)
}

// WithProject returns a logger scoped to one project within a tenant.
func WithProject(company, projectID string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"company": company,
		"project": projectID,
	})
}
