package domain

// Protocol classifies how a lesson's video must be fetched.
type Protocol string

const (
	// ProtocolHLS is a generic segmented HTTP stream.
	ProtocolHLS Protocol = "hls"

	// ProtocolHLSSplitAV is a segmented stream whose audio lives in a
	// sibling media playlist inferable from the video playlist filename.
	ProtocolHLSSplitAV Protocol = "hls-splitav"

	// ProtocolDRM is a segmented stream gated behind a license exchange.
	ProtocolDRM Protocol = "drm"

	// ProtocolFile is a plain progressive file.
	ProtocolFile Protocol = "file"

	// ProtocolUnknown means the source must be sniffed by URL suffix.
	ProtocolUnknown Protocol = "unknown"
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// ParseProtocol maps a raw tag to a Protocol, defaulting to unknown.
func ParseProtocol(s string) Protocol {
	switch Protocol(s) {
	case ProtocolHLS, ProtocolHLSSplitAV, ProtocolDRM, ProtocolFile:
		return Protocol(s)
	default:
		return ProtocolUnknown
	}
}

// DownloadTask is the immutable unit of work submitted to the engine.
// It is produced by the external extraction collaborator; the engine
// never discovers video URLs itself.
type DownloadTask struct {
	LessonID   int64
	LessonName string
	SourceURL  string
	Protocol   Protocol
	OutputPath string

	// Quality is an optional hint such as "720p" or "best".
	Quality string

	// Optional auth context forwarded on every request for this task.
	Cookies   string
	Referer   string
	AuthToken string
}
