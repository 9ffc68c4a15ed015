package models

// MessageKind discriminates requests crossing the capture/background
// boundary. The capture context never touches storage directly; everything
// goes through one of these messages.
type MessageKind string

const (
	MsgAddItems     MessageKind = "add_items"
	MsgGet          MessageKind = "get"
	MsgClear        MessageKind = "clear"
	MsgSetCapturing MessageKind = "set_capturing"
	MsgDownloadCSV  MessageKind = "download_csv"
	MsgDownloadJSON MessageKind = "download_json"
	MsgEnrichEmails MessageKind = "enrich_emails"
	MsgImport       MessageKind = "import"
	MsgPanelDebug   MessageKind = "panel_debug"
)

// Message is a request to the background context. Only the fields relevant
// to the Kind are populated.
type Message struct {
	Kind      MessageKind    `json:"kind"`
	Items     []CaptureItem  `json:"items,omitempty"`
	Capturing bool           `json:"capturing,omitempty"`
	Niche     string         `json:"niche,omitempty"`
	Location  string         `json:"location,omitempty"`
	Debug     *DebugSnapshot `json:"debug,omitempty"`
}

// Reply is the background context's response. Err carries transport-level
// failures; domain failures (enrichment cap, import rejection) surface as
// LastError on subsequent Get calls instead.
type Reply struct {
	OK         bool           `json:"ok"`
	Total      int            `json:"total,omitempty"`
	Items      []CaptureItem  `json:"items,omitempty"`
	State      CaptureState   `json:"state"`
	Capturing  bool           `json:"capturing"`
	LastError  string         `json:"last_error,omitempty"`
	LastImport *ImportRecord  `json:"last_import,omitempty"`
	LastDebug  *DebugSnapshot `json:"last_debug,omitempty"`
	Processed  int            `json:"processed,omitempty"`
	Failures   int            `json:"failures,omitempty"`
	Path       string         `json:"path,omitempty"`
	Err        string         `json:"error,omitempty"`
}
