package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category classifies a notification. It drives the default sound and the
// urgency a sink picks when nothing more specific is configured.
type Category string

const (
	CategoryQuestion Category = "question"
	CategorySuccess  Category = "success"
	CategoryError    Category = "error"
	CategoryInfo     Category = "info"
	CategoryStop     Category = "stop"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{CategoryQuestion, CategorySuccess, CategoryError, CategoryInfo, CategoryStop}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryQuestion, CategorySuccess, CategoryError, CategoryInfo, CategoryStop:
		return true
	}
	return false
}

// Actions is the list of action button labels. On the wire it may be a
// single string or an array of strings.
type Actions []string

func (a *Actions) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*a = nil
			return nil
		}
		*a = Actions{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("actions: want string or list of strings: %w", err)
	}
	*a = list
	return nil
}

// Request is an inbound notify call. It is immutable once decoded and lives
// for the duration of one relay call.
type Request struct {
	Title    string   `json:"title" validate:"required"`
	Message  string   `json:"message" validate:"required"`
	Category Category `json:"category" validate:"required,category"`

	// Cwd is the caller's working directory name; it stands in for the
	// subtitle when no tier sets one.
	Cwd string `json:"cwd,omitempty"`

	Subtitle     string `json:"subtitle,omitempty"`
	Sound        string `json:"sound,omitempty"`
	Icon         string `json:"icon,omitempty"`
	ContentImage string `json:"contentImage,omitempty"`
	Timeout      *int   `json:"timeout,omitempty" validate:"omitempty,min=0"`
	Wait         *bool  `json:"wait,omitempty"`

	// Passthrough fields, copied verbatim to the sink.
	Open          string  `json:"open,omitempty"`
	CloseLabel    string  `json:"closeLabel,omitempty"`
	Actions       Actions `json:"actions,omitempty"`
	DropdownLabel string  `json:"dropdownLabel,omitempty"`
	Reply         *bool   `json:"reply,omitempty"`
}

// Notification is a fully resolved, delivery-ready payload.
//
// Sound, Timeout and Wait are always set. Subtitle, Icon and ContentImage are
// empty when no tier supplied them. Icon and ContentImage are scheme-qualified
// locators (file://, http://, https://).
type Notification struct {
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	Category     Category `json:"category"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Sound        string   `json:"sound"`
	Icon         string   `json:"icon,omitempty"`
	ContentImage string   `json:"contentImage,omitempty"`
	Timeout      int      `json:"timeout"`
	Wait         bool     `json:"wait"`

	Open          string  `json:"open,omitempty"`
	CloseLabel    string  `json:"closeLabel,omitempty"`
	Actions       Actions `json:"actions,omitempty"`
	DropdownLabel string  `json:"dropdownLabel,omitempty"`
	Reply         bool    `json:"reply,omitempty"`
}

// Response is the body of every /notify answer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
