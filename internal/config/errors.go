package config

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Require* helpers when a persisted file is absent.
var ErrNotFound = errors.New("config not found")

// ConfigurationError reports a missing or unreadable persisted config file.
// Remediation is a command the operator can run to fix it.
type ConfigurationError struct {
	Path        string
	Remediation string
	Err         error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("config %s", e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Remediation != "" {
		msg += " (" + e.Remediation + ")"
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

const (
	RemediationMaster = "run: notifyrelay install master"
	RemediationAgent  = "run: notifyrelay install agent"
)
