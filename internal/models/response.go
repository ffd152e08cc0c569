package models

// ConvertResponse is the success envelope for POST /convert.
type ConvertResponse struct {
	Success      bool   `json:"success"`
	MusicXML     string `json:"musicxml"`
	OriginalName string `json:"originalName"`
	Size         int    `json:"size"`
}

// ErrorResponse is returned on every failure path.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries operator diagnostics. Clients only need Error.
type ErrorDetails struct {
	Code    *int   `json:"code,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
	Command string `json:"command,omitempty"`
}

// StatusResponse is served from GET /.
type StatusResponse struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	ToolStatus string `json:"toolStatus"`
	Tool       string `json:"tool,omitempty"`
	Version    string `json:"version,omitempty"`
}

// DebugResponse is served from GET /debug.
type DebugResponse struct {
	Command string  `json:"command"`
	Error   *string `json:"error"`
	Stdout  string  `json:"stdout"`
	Stderr  string  `json:"stderr"`
}
