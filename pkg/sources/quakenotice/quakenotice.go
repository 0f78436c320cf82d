// Package quakenotice polls the KMA domestic earthquake notice page. The
// page carries a single HTML block describing the most recent quake; the
// checkpoint is the normalized text of the last emitted block, so an
// unchanged page produces nothing.
package quakenotice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/sources/parseutil"
)

const (
	defaultBaseURL = "https://www.weather.go.kr/w/eqk-vol/recent-eqk.do"
	requestTimeout = 15 * time.Second
	pollInterval   = 60 * time.Second

	timeLayout = "2006/01/02 15:04:05"

	// Below this magnitude the notice is a micro-quake, informational only.
	microQuakeThreshold = 3.0
)

// noticeRe matches the normalized notice text:
//
//	2025/12/25 05:14:43 경남 밀양시 동쪽 15km 지역 (규모:1.5 / 깊이:8km)
var noticeRe = regexp.MustCompile(
	`(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) (.+?) \(규모\s*:\s*([0-9.]+) / 깊이\s*:\s*([0-9.]+)\s*km\)`)

// Adapter polls the earthquake notice page.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// New returns a QuakeNotice adapter with production defaults.
func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (a *Adapter) SourceID() models.Source {
	return models.SourceQuakeNotice
}

func (a *Adapter) PollInterval() time.Duration {
	return pollInterval
}

// Run fetches the page, extracts the notice block, and emits one event when
// the normalized block differs from the stored snapshot.
func (a *Adapter) Run(ctx context.Context, state *string) (ingest.Result, error) {
	prior := ingest.Result{NextState: state}

	page, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("Quake-notice fetch failed", "error", err)
		return prior, nil
	}

	normalized := parseutil.StripTags(page)
	match := noticeRe.FindStringSubmatch(normalized)
	if match == nil {
		slog.Warn("Quake-notice page had no recognizable notice block")
		return prior, nil
	}

	snapshot := match[0]
	if state != nil && *state == snapshot {
		return prior, nil
	}

	draft, err := draftFromNotice(match)
	if err != nil {
		slog.Warn("Quake-notice parse failed", "notice", snapshot, "error", err)
		return prior, nil
	}
	return ingest.Result{Events: []ingest.Draft{draft}, NextState: &snapshot}, nil
}

func (a *Adapter) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

func draftFromNotice(match []string) (ingest.Draft, error) {
	region := match[2]

	magnitude, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return ingest.Draft{}, fmt.Errorf("bad magnitude %q: %w", match[3], err)
	}
	depthKm, err := strconv.ParseFloat(match[4], 64)
	if err != nil {
		return ingest.Draft{}, fmt.Errorf("bad depth %q: %w", match[4], err)
	}

	magText := strconv.FormatFloat(magnitude, 'f', 1, 64)
	title := fmt.Sprintf("%s 규모 %s 지진", region, magText)
	if magnitude < microQuakeThreshold {
		title = fmt.Sprintf("%s 규모 %s 미소지진", region, magText)
	}

	return ingest.Draft{
		Kind:       models.KindEarthquake,
		Title:      title,
		OccurredAt: parseutil.ParseKST(timeLayout, match[1]),
		RegionText: &region,
		Level:      levelFromMagnitude(magnitude),
		Payload: map[string]any{
			"magnitude": magnitude,
			"depthKm":   depthKm,
		},
	}, nil
}

// Severity tiers by magnitude. Micro-quakes stay informational; the upper
// tiers track the felt-damage bands KMA uses for domestic notices.
func levelFromMagnitude(magnitude float64) models.Level {
	switch {
	case magnitude < microQuakeThreshold:
		return models.LevelInfo
	case magnitude < 4.0:
		return models.LevelMinor
	case magnitude < 5.0:
		return models.LevelModerate
	case magnitude < 6.0:
		return models.LevelSevere
	default:
		return models.LevelCritical
	}
}
