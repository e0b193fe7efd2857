package tool

import "encoding/json"

// Result statuses reported back to the model.
const (
	StatusImageGenerated = "image_generated"
	StatusFailed         = "failed"
)

// Image is a generated image. It never reaches the model, only the chat.
type Image struct {
	Data     []byte
	MimeType string
	Prompt   string
}

// Result is the output envelope for tool execution. Its JSON form is the
// tool message content sent to the model.
type Result struct {
	Status   string `json:"status"`
	Prompt   string `json:"prompt,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Image    *Image `json:"-"`
}

// Failed builds a failed result with reason.
func Failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

// Content renders r as the tool message content.
func (r Result) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"failed"}`
	}
	return string(b)
}
