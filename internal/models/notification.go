package models

import (
	"fmt"
	"strings"
)

// SendRequest is the inbound body accepted over HTTP and from the push queue.
type SendRequest struct {
	UserID string                 `json:"userId"`
	Title  string                 `json:"title"`
	Body   string                 `json:"body"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Missing returns the names of required fields that are empty.
func (r *SendRequest) Missing() []string {
	var missing []string
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.Body) == "" {
		missing = append(missing, "body")
	}
	return missing
}

// Payload converts the request into the payload handed to the provider.
func (r *SendRequest) Payload() NotificationPayload {
	return NotificationPayload{
		Title: r.Title,
		Body:  r.Body,
		Data:  toStringMap(r.Data),
	}
}

// NotificationPayload is the message sent to every target of a request.
type NotificationPayload struct {
	Title string
	Body  string
	Data  map[string]string
}

// FCM only accepts string values inside data.
func toStringMap(vars map[string]interface{}) map[string]string {
	result := make(map[string]string, len(vars))
	for k, v := range vars {
		if s, ok := v.(string); ok {
			result[k] = s
			continue
		}
		result[k] = fmt.Sprint(v)
	}
	return result
}
