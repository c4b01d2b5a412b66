// Package hls parses HTTP streaming playlists and resolves their references.
package hls

import (
	"bufio"
	"bytes"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/coursevault/coursevault/internal/domain"
)

const (
	tagStreamInf = "#EXT-X-STREAM-INF:"
	tagInf       = "#EXTINF:"
)

// IsMaster reports whether playlist data is a master playlist.
func IsMaster(data []byte) bool {
	return bytes.Contains(data, []byte("#EXT-X-STREAM-INF"))
}

// ParseMaster reads a master playlist, resolving variant URIs against base.
// Signed query parameters on base are propagated onto variants that carry
// no query of their own.
func ParseMaster(r io.Reader, base *url.URL) (*domain.MasterPlaylist, error) {
	master := &domain.MasterPlaylist{}

	var pending *domain.Variant
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, tagStreamInf):
			attrs := parseAttributes(strings.TrimPrefix(line, tagStreamInf))
			v := domain.Variant{Resolution: attrs["RESOLUTION"]}
			if bw, err := strconv.Atoi(attrs["BANDWIDTH"]); err == nil {
				v.Bandwidth = bw
			}
			pending = &v
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		default:
			if pending == nil {
				continue
			}
			pending.URL = Resolve(base, line)
			master.Variants = append(master.Variants, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return master, nil
}

// ParseMedia reads a media playlist into an ordered segment list. Relative
// segment URIs are made absolute against base and signed query parameters
// present on base are propagated onto segments lacking their own.
func ParseMedia(r io.Reader, base *url.URL) (*domain.MediaPlaylist, error) {
	media := &domain.MediaPlaylist{BaseURL: base.String()}

	var duration float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, tagInf):
			raw := strings.TrimPrefix(line, tagInf)
			if i := strings.Index(raw, ","); i >= 0 {
				raw = raw[:i]
			}
			duration, _ = strconv.ParseFloat(raw, 64)
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		default:
			media.Segments = append(media.Segments, domain.Segment{
				URL:      Resolve(base, line),
				Duration: duration,
				Index:    len(media.Segments),
			})
			duration = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(media.Segments) == 0 {
		return nil, domain.ErrNoSegments
	}

	return media, nil
}

// Resolve makes ref absolute against base. A reference without its own
// query inherits the base's query string, so time-limited signatures keep
// working on sibling references within the same manifest.
func Resolve(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	resolved := base.ResolveReference(parsed)
	if resolved.RawQuery == "" && base.RawQuery != "" {
		resolved.RawQuery = base.RawQuery
	}
	return resolved.String()
}

// SelectVariant picks a variant by quality hint. An empty or "best" hint
// selects the highest bandwidth; a hint such as "480p" selects the variant
// whose resolution height is numerically closest to 480, preferring higher
// bandwidth on ties.
func SelectVariant(variants []domain.Variant, quality string) domain.Variant {
	if len(variants) == 0 {
		return domain.Variant{}
	}

	if h, ok := parseQualityHint(quality); ok {
		best := -1
		bestDist := 0
		for i, v := range variants {
			vh, ok := resolutionHeight(v.Resolution)
			if !ok {
				continue
			}
			dist := vh - h
			if dist < 0 {
				dist = -dist
			}
			if best < 0 || dist < bestDist || (dist == bestDist && v.Bandwidth > variants[best].Bandwidth) {
				best = i
				bestDist = dist
			}
		}
		if best >= 0 {
			return variants[best]
		}
	}

	best := 0
	for i, v := range variants {
		if v.Bandwidth > variants[best].Bandwidth {
			best = i
		}
	}
	return variants[best]
}

// SiblingAudioURL infers the separate audio playlist for providers that
// split audio out of the video variant. The audio playlist is the video
// playlist URL with "video" replaced by "audio" in the final path element.
// Returns false when the substitution changes nothing, which means the
// variant is muxed.
func SiblingAudioURL(videoURL string) (string, bool) {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", false
	}

	dir, file := path.Split(u.Path)
	replaced := strings.Replace(file, "video", "audio", 1)
	if replaced == file {
		return "", false
	}

	u.Path = dir + replaced
	return u.String(), true
}

// parseQualityHint extracts the target height from hints like "480p" or "480".
func parseQualityHint(quality string) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(quality))
	if q == "" || q == "best" || q == "highest" {
		return 0, false
	}
	q = strings.TrimSuffix(q, "p")
	h, err := strconv.Atoi(q)
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

// resolutionHeight extracts the height from a "WxH" resolution string.
func resolutionHeight(res string) (int, bool) {
	_, hs, ok := strings.Cut(res, "x")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, false
	}
	return h, true
}

// parseAttributes parses a comma-separated attribute list, honoring quoted
// values that may themselves contain commas (e.g. CODECS).
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)

	for len(s) > 0 {
		eq := strings.Index(s, "=")
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.Index(s[1:], `"`)
			if end < 0 {
				value = s[1:]
				s = ""
			} else {
				value = s[1 : end+1]
				s = s[end+2:]
				s = strings.TrimPrefix(s, ",")
			}
		} else {
			if i := strings.Index(s, ","); i >= 0 {
				value = s[:i]
				s = s[i+1:]
			} else {
				value = s
				s = ""
			}
		}
		attrs[key] = strings.TrimSpace(value)
	}

	return attrs
}
