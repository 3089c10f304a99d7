package storage

// Note types.
const (
	NoteTypeHour = "hour"
	NoteTypeDay  = "day"
)

// Job types.
const (
	JobTypeHourly    = "hourly"
	JobTypeDaily     = "daily"
	JobTypeEmbedding = "embedding"
	JobTypeCleanup   = "cleanup"
)

// Job statuses.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// Edge types. The set is closed; re-deriving an existing
// (from_id, to_id, edge_type) updates weight and evidence in place.
const (
	EdgeAboutTopic    = "ABOUT_TOPIC"
	EdgeWatched       = "WATCHED"
	EdgeListenedTo    = "LISTENED_TO"
	EdgeUsedApp       = "USED_APP"
	EdgeVisitedDomain = "VISITED_DOMAIN"
	EdgeDocReference  = "DOC_REFERENCE"
	EdgeCoOccurred    = "CO_OCCURRED_WITH"
	EdgeStudiedWhile  = "STUDIED_WHILE"
)

// TextBuffer source types.
const (
	SourcePDF = "pdf"
	SourceOCR = "ocr"
)

// Event is a time-ranged activity span [StartTS, EndTS) for one monitor.
// The capture loop extends the open event in place and seals it on any
// foreground transition; sealed events are never mutated.
type Event struct {
	ID          string
	MonitorID   int
	AppID       string
	AppName     string
	WindowTitle string
	URL         string
	PageTitle   string
	DocPath     string
	Location    string
	NowPlaying  string
	StartTS     int64
	EndTS       int64
	Sealed      bool
}

// Screenshot is one persisted frame for one monitor.
type Screenshot struct {
	ID          string
	MonitorID   int
	CapturedTS  int64
	Day         string // YYYYMMDD in the configured timezone
	Path        string
	Fingerprint uint64 // perceptual difference hash
	DiffScore   int    // hamming distance against prior persisted frame
	IsAnchor    bool
}

// TextBuffer is transient extracted text, zstd-compressed on disk.
type TextBuffer struct {
	ID         string
	SourceType string // pdf | ocr
	SourceRef  string // file path or screenshot id
	Day        string
	Path       string
	TokenCount int
	CapturedTS int64
}

// NoteRecord is a durable hourly or daily summary. JSONPayload is the source
// of truth; FilePath points at the markdown rendering of it.
type NoteRecord struct {
	ID          string
	Type        string
	StartTS     int64
	EndTS       int64
	FilePath    string
	JSONPayload string
	EmbeddingID string
	CreatedTS   int64
	UpdatedTS   int64
}

// Entity is a canonical concept. A merged entity keeps its row with
// MergedInto pointing at the survivor; it is never physically deleted.
type Entity struct {
	ID            string
	EntityType    string
	CanonicalName string
	Aliases       []string
	CreatedTS     int64
	MergedInto    string
}

// NoteEntity associates a note with an entity. At most one row per pair;
// strength is overwritten on reprocessing.
type NoteEntity struct {
	NoteID   string
	EntityID string
	Strength float64
}

// Edge is a typed weighted relationship keyed by (FromID, ToID, EdgeType).
type Edge struct {
	FromID          string
	ToID            string
	EdgeType        string
	Weight          float64
	StartTS         int64 // 0 means unset
	EndTS           int64 // 0 means unset
	EvidenceNoteIDs []string
	UpdatedTS       int64
}

// Aggregate is a precomputed rollup for one period; always recomputable.
type Aggregate struct {
	PeriodType    string // hour | day
	PeriodStartTS int64
	PeriodEndTS   int64
	KeyType       string // app | domain | topic | media
	Key           string
	ValueNum      float64
}

// Job is one unit of scheduled work, uniquely keyed by
// (JobType, WindowStartTS, WindowEndTS).
type Job struct {
	ID            string
	JobType       string
	WindowStartTS int64
	WindowEndTS   int64
	Status        string
	Attempts      int
	LastError     string
	CreatedTS     int64
	UpdatedTS     int64
}

// NowPlayingSnapshot is a time-stamped media snapshot, polled independently
// of the frame cadence.
type NowPlayingSnapshot struct {
	ID     string
	TS     int64
	Title  string
	Artist string
	App    string
}

// LocationSnapshot is a time-stamped best-effort location string.
type LocationSnapshot struct {
	ID   string
	TS   int64
	Text string
}

// DeletionRecord is one audit row per successful post-checkpoint purge.
type DeletionRecord struct {
	Day              string
	Screenshots      int
	TextBuffers      int
	OCRIntermediates int
	DeletedTS        int64
}
