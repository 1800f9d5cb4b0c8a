package core

// PhotoRecord is what a Provider reports for a single remote photo during a
// scan or a change event. It carries no cache or display state — that lives
// only in the Metadata Store.
type PhotoRecord struct {
	ID             string
	Filename       string
	ParentFolderID string
	CreatedAt      *int64 // epoch ms, optional
	Width          *int
	Height         *int
}

// ChangeKind discriminates the three shapes a ChangeEvent can take.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

// ChangeEvent is one entry in a Provider's incremental change sequence.
// For ChangeDeleted, only PhotoID is populated; for the other two, Record.
type ChangeEvent struct {
	Kind    ChangeKind
	Record  PhotoRecord
	PhotoID string
}

// FolderSpec is a configuration input (never persisted as rows) describing
// one folder subtree a Provider should scan.
//
// FolderID == "" means the provider's root sentinel.
// Depth == -1 means unbounded, 0 means the folder itself with no descent,
// N>0 means descend N levels.
type FolderSpec struct {
	FolderID string
	Depth    int
}

const RootFolderID = ""

// FrameEvent is emitted to the external front-end on every display tick
// that has a candidate to show. Bytes is raw; callers that cross a text
// channel are responsible for base64-encoding it (§6).
type FrameEvent struct {
	PhotoID   string
	Bytes     []byte
	Filename  string
	CreatedAt *int64
	Width     *int
	Height    *int
}

// FrameSink is the external front-end boundary (§6). The rendering
// front-end is out of scope for this repo; FrameSink is the interface it
// would implement.
type FrameSink interface {
	EmitFrame(FrameEvent)
}

// StatusSink is the UPDATE_STATUS boundary (§7): plain-text operator status,
// never a crash.
type StatusSink interface {
	UpdateStatus(msg string)
}
