package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
)

// Response is a relay response read fully into memory
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Message returns the relay's {"msg": ...} text, or the raw body
func (r *Response) Message() string {
	var m api.Message
	if err := json.Unmarshal(r.Body, &m); err == nil && m.Msg != "" {
		return m.Msg
	}
	return strings.TrimSpace(r.BodyString())
}

// Error describes an unexpected status
func (r *Response) Error() error {
	if msg := r.Message(); msg != "" {
		return fmt.Errorf("relay returned %s: %s", r.Status, msg)
	}
	return fmt.Errorf("relay returned %s", r.Status)
}
