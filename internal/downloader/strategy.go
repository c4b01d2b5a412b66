package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/hls"
)

// ResolvedStreams is a strategy's output: the video segment list, an
// optional separate audio segment list, and the auth context every
// segment request must carry.
type ResolvedStreams struct {
	Video *domain.MediaPlaylist
	Audio *domain.MediaPlaylist
	Auth  authContext
}

// Strategy resolves a task's manifest into segment lists. Each provider
// quirk (split audio playlists, DRM license exchange) lives in its own
// strategy so it can be tested in isolation.
type Strategy interface {
	ResolveManifest(ctx context.Context, task domain.DownloadTask) (*ResolvedStreams, error)
}

// genericStrategy handles plain segmented streams: fetch the manifest,
// select a variant if it is a master playlist, resolve the segment list.
type genericStrategy struct {
	client *httpClient
}

func (s *genericStrategy) ResolveManifest(ctx context.Context, task domain.DownloadTask) (*ResolvedStreams, error) {
	auth := authFromTask(task)

	video, err := resolveMedia(ctx, s.client, task.SourceURL, task.Quality, auth)
	if err != nil {
		return nil, err
	}

	return &ResolvedStreams{Video: video, Auth: auth}, nil
}

// splitAVStrategy handles providers that publish audio as a sibling
// media playlist inferable from the video playlist filename.
type splitAVStrategy struct {
	client *httpClient
}

func (s *splitAVStrategy) ResolveManifest(ctx context.Context, task domain.DownloadTask) (*ResolvedStreams, error) {
	auth := authFromTask(task)

	video, err := resolveMedia(ctx, s.client, task.SourceURL, task.Quality, auth)
	if err != nil {
		return nil, err
	}

	streams := &ResolvedStreams{Video: video, Auth: auth}

	audioURL, ok := hls.SiblingAudioURL(video.BaseURL)
	if !ok {
		// Nothing to infer; the variant is muxed.
		return streams, nil
	}

	audio, err := fetchMedia(ctx, s.client, audioURL, auth)
	if err != nil {
		return nil, fmt.Errorf("resolve sibling audio playlist: %w", err)
	}
	streams.Audio = audio

	return streams, nil
}

// drmStrategy exchanges an opaque asset id for a short-lived license
// before any manifest fetch; the license token rides on every
// subsequent manifest and segment request.
type drmStrategy struct {
	client  *httpClient
	license *LicenseClient
}

func (s *drmStrategy) ResolveManifest(ctx context.Context, task domain.DownloadTask) (*ResolvedStreams, error) {
	lic, err := s.license.Exchange(ctx, task.SourceURL, task.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("license exchange: %w", err)
	}

	auth := authFromTask(task)
	auth.Bearer = lic.Token

	video, err := resolveMedia(ctx, s.client, lic.ManifestURL, task.Quality, auth)
	if err != nil {
		return nil, err
	}

	return &ResolvedStreams{Video: video, Auth: auth}, nil
}

// resolveMedia fetches a manifest URL and resolves it to a media
// playlist, following a master playlist through variant selection.
func resolveMedia(ctx context.Context, client *httpClient, manifestURL, quality string, auth authContext) (*domain.MediaPlaylist, error) {
	body, finalURL, err := client.fetch(ctx, manifestURL, auth)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	if !hls.IsMaster(body) {
		return parseMedia(body, finalURL)
	}

	master, err := hls.ParseMaster(bytes.NewReader(body), finalURL)
	if err != nil {
		return nil, fmt.Errorf("parse master playlist: %w", err)
	}
	if len(master.Variants) == 0 {
		return nil, fmt.Errorf("master playlist: %w", domain.ErrNoStream)
	}

	variant := hls.SelectVariant(master.Variants, quality)
	return fetchMedia(ctx, client, variant.URL, auth)
}

// fetchMedia fetches and parses a single media playlist.
func fetchMedia(ctx context.Context, client *httpClient, playlistURL string, auth authContext) (*domain.MediaPlaylist, error) {
	body, finalURL, err := client.fetch(ctx, playlistURL, auth)
	if err != nil {
		return nil, fmt.Errorf("fetch media playlist: %w", err)
	}
	return parseMedia(body, finalURL)
}

func parseMedia(body []byte, base *url.URL) (*domain.MediaPlaylist, error) {
	media, err := hls.ParseMedia(bytes.NewReader(body), base)
	if err != nil {
		return nil, fmt.Errorf("parse media playlist: %w", err)
	}
	return media, nil
}
