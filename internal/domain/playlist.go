package domain

// Variant is one quality alternative advertised by a master playlist.
type Variant struct {
	Bandwidth  int
	Resolution string // "1280x720", may be empty
	URL        string // absolute media playlist URL
}

// MasterPlaylist enumerates the quality variants of one stream.
type MasterPlaylist struct {
	Variants []Variant
}

// Segment is a single media chunk referenced by a media playlist.
type Segment struct {
	URL      string // absolute
	Duration float64
	Index    int
}

// MediaPlaylist is the ordered segment sequence for one variant.
// Segment order must be preserved exactly as declared.
type MediaPlaylist struct {
	BaseURL  string
	Segments []Segment
}
