// Package extractor resolves media URLs through the YouTube client: metadata
// probes without downloading, playlist expansion and direct stream URLs.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"
)

var (
	ErrUnsupportedURL = errors.New("unsupported URL")
	ErrNoAudio        = errors.New("no audio formats found")
	ErrEmptyPlaylist  = errors.New("playlist has no entries")
)

// ExtractionError is returned when a URL cannot be resolved to playable media.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("could not extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// MediaInfo describes a single video or a playlist. For playlists Entries
// holds the videos in order and Duration is their sum.
type MediaInfo struct {
	URL      string
	Title    string
	Duration time.Duration
	Playlist bool
	Entries  []MediaInfo
}

type Extractor struct {
	client *youtube.Client
	proxy  string
}

// New builds an extractor. proxyStr may be empty or an http, https, socks5
// or socks4 URL.
func New(proxyStr string) *Extractor {
	client, used := newClient(proxyStr)
	return &Extractor{client: client, proxy: used}
}

// Proxy returns the proxy in use, or "" when connecting directly.
func (e *Extractor) Proxy() string { return e.proxy }

// Probe fetches metadata only.
func (e *Extractor) Probe(ctx context.Context, rawURL string) (*MediaInfo, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !isURL(rawURL) {
		return nil, &ExtractionError{URL: rawURL, Err: ErrUnsupportedURL}
	}

	if listID := playlistID(rawURL); listID != "" && videoID(rawURL) == "" {
		return e.probePlaylist(ctx, rawURL)
	}

	video, err := e.client.GetVideoContext(ctx, CleanVideoURL(rawURL))
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Err: err}
	}
	if len(video.Formats.WithAudioChannels()) == 0 {
		return nil, &ExtractionError{URL: rawURL, Err: ErrNoAudio}
	}

	return &MediaInfo{
		URL:      watchURL(video.ID),
		Title:    video.Title,
		Duration: video.Duration,
	}, nil
}

func (e *Extractor) probePlaylist(ctx context.Context, rawURL string) (*MediaInfo, error) {
	pl, err := e.client.GetPlaylistContext(ctx, rawURL)
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Err: err}
	}

	info := &MediaInfo{URL: rawURL, Title: pl.Title, Playlist: true}
	for _, v := range pl.Videos {
		if v == nil || v.ID == "" {
			continue
		}
		info.Entries = append(info.Entries, MediaInfo{
			URL:      watchURL(v.ID),
			Title:    v.Title,
			Duration: v.Duration,
		})
		info.Duration += v.Duration
	}
	if len(info.Entries) == 0 {
		return nil, &ExtractionError{URL: rawURL, Err: ErrEmptyPlaylist}
	}

	log.Printf("[INFO] [Extractor] Playlist %q resolved to %d entries", pl.Title, len(info.Entries))
	return info, nil
}

// StreamURL returns a direct URL of the first audio-bearing format.
func (e *Extractor) StreamURL(ctx context.Context, rawURL string) (string, error) {
	video, err := e.client.GetVideoContext(ctx, CleanVideoURL(rawURL))
	if err != nil {
		return "", &ExtractionError{URL: rawURL, Err: err}
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", &ExtractionError{URL: rawURL, Err: ErrNoAudio}
	}

	link, err := e.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return "", &ExtractionError{URL: rawURL, Err: fmt.Errorf("get stream URL: %w", err)}
	}
	return link, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func videoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Hostname() == "youtu.be" {
		return strings.Trim(u.Path, "/")
	}
	return u.Query().Get("v")
}

func playlistID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}

// CleanVideoURL strips everything but the video id from a YouTube URL.
func CleanVideoURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := u.Hostname()

	switch host {
	case "youtu.be":
		vid := strings.Trim(u.Path, "/")
		if vid == "" {
			return raw
		}
		return fmt.Sprintf("https://youtu.be/%s", vid)

	case "www.youtube.com", "youtube.com", "music.youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			if vid := u.Query().Get("v"); vid != "" {
				return fmt.Sprintf("https://%s/watch?v=%s", host, vid)
			}
		}
		return raw

	default:
		return raw
	}
}
