package api

// FileRequest is the body of PUT and POST /api/files/*.
// Encoding is empty for text or "base64".
type FileRequest struct {
	Content  string   `json:"content"`
	Encoding string   `json:"encoding,omitempty"`
	Author   string   `json:"author,omitempty"`
	Message  string   `json:"message,omitempty"`
	Reload   []string `json:"reload,omitempty"`
}

// FileResponse is a file read from the live tree or a version. Content that
// is not UTF-8 text comes back base64 encoded, with Encoding set.
type FileResponse struct {
	Path     string `json:"path"`
	Version  string `json:"version,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}
