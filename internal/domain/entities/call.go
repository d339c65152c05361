package entities

// CallResult is a backend response normalized by output class. Exactly one
// of JSON, Data, Text is populated depending on Kind.
type CallResult struct {
	Kind        OutputKind `json:"kind"`
	ContentType string     `json:"contentType"`
	JSON        any        `json:"json,omitempty"`
	Data        string     `json:"data,omitempty"` // base64 for image / pdf
	Size        int        `json:"size,omitempty"` // decoded byte size for binary payloads
	Text        string     `json:"text,omitempty"`

	BackendStatus int   `json:"-"`
	BackendMs     int64 `json:"-"`
	Retries       int   `json:"-"`
}
