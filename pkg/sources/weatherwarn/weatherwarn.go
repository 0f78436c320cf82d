// Package weatherwarn polls the KMA weather-warning open API. The API
// returns a hash-commented CSV of active warnings per forecast region; the
// checkpoint is a seen-set with a 7-day TTL keyed by region, phenomenon,
// tier and announcement time, so each announcement is emitted once.
//
// The API requires a key; the adapter is only registered when one is
// configured.
package weatherwarn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/sources/parseutil"
	"github.com/krsafety/alertfeed/pkg/sources/seenset"
)

const (
	defaultBaseURL = "https://apihub.kma.go.kr/api/typ01/url/wrn_now_data.php"
	requestTimeout = 20 * time.Second
	pollInterval   = 300 * time.Second
	seenTTL        = 7 * 24 * time.Hour

	timeLayout = "200601021504"
)

// warning is one decoded CSV row.
type warning struct {
	RegionID    string
	RegionName  string
	EffectiveAt string
	Phenomenon  string
	Tier        string
	Command     string
}

// dedupKey identifies one announcement across polls.
func (w warning) dedupKey() string {
	return strings.Join([]string{w.RegionID, w.EffectiveAt, w.Phenomenon, w.Tier, w.Command}, "|")
}

// Adapter polls the weather-warning API.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// New returns a WeatherWarning adapter using the given API key.
func New(apiKey string) *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

func (a *Adapter) SourceID() models.Source {
	return models.SourceWeatherWarning
}

func (a *Adapter) PollInterval() time.Duration {
	return pollInterval
}

// Run fetches the active-warning CSV, prunes the seen-set, and emits one
// event per announcement not yet in the set.
func (a *Adapter) Run(ctx context.Context, state *string) (ingest.Result, error) {
	prior := ingest.Result{NextState: state}

	body, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("Weather-warning fetch failed", "error", err)
		return prior, nil
	}

	warnings := parseCSV(body)

	now := a.now().UTC()
	seen := seenset.Parse(state)
	seen.Prune(now, seenTTL)

	drafts := make([]ingest.Draft, 0, len(warnings))
	for _, w := range warnings {
		key := w.dedupKey()
		if !seen.Has(key) {
			drafts = append(drafts, draftFromWarning(w))
		}
		seen.Add(key, now)
	}

	nextState, err := seen.Encode()
	if err != nil {
		slog.Warn("Weather-warning seen-set encode failed", "error", err)
		return prior, nil
	}
	return ingest.Result{Events: drafts, NextState: nextState}, nil
}

func (a *Adapter) fetch(ctx context.Context) (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", fmt.Errorf("bad base URL: %w", err)
	}
	q := u.Query()
	q.Set("authKey", a.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
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

// Row layout: REG_ID, REG_KO, TM_EF, WRN_KO, LVL_KO, CMD_KO. Lines starting
// with '#' are banner comments; rows occasionally end in a stray "=" cell
// which is dropped. Short or empty rows are skipped with a warning.
func parseCSV(body string) []warning {
	var warnings []warning
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(fields[i]), "="))
		}
		if len(fields) > 0 && fields[len(fields)-1] == "" {
			fields = fields[:len(fields)-1]
		}
		if len(fields) < 6 {
			slog.Warn("Weather-warning row too short, skipping", "line", line)
			continue
		}

		warnings = append(warnings, warning{
			RegionID:    fields[0],
			RegionName:  parseutil.CollapseWhitespace(fields[1]),
			EffectiveAt: fields[2],
			Phenomenon:  parseutil.CollapseWhitespace(fields[3]),
			Tier:        parseutil.CollapseWhitespace(fields[4]),
			Command:     parseutil.CollapseWhitespace(fields[5]),
		})
	}
	return warnings
}

func draftFromWarning(w warning) ingest.Draft {
	title := parseutil.CollapseWhitespace(
		fmt.Sprintf("%s %s%s %s", w.RegionName, w.Phenomenon, w.Tier, w.Command))

	var region *string
	if w.RegionName != "" {
		region = &w.RegionName
	}

	return ingest.Draft{
		Kind:       kindFromPhenomenon(w.Phenomenon),
		Title:      title,
		OccurredAt: parseutil.ParseKST(timeLayout, w.EffectiveAt),
		RegionText: region,
		Level:      levelFromTier(w.Tier, w.Command),
		Payload: map[string]any{
			"regionId":   w.RegionID,
			"phenomenon": w.Phenomenon,
			"tier":       w.Tier,
			"command":    w.Command,
		},
	}
}

// 경보 (warning) outranks 주의보 (advisory); a lifted announcement is
// informational whatever its tier.
func levelFromTier(tier, command string) models.Level {
	if strings.Contains(command, "해제") {
		return models.LevelInfo
	}
	switch {
	case strings.Contains(tier, "경보"):
		return models.LevelSevere
	case strings.Contains(tier, "주의보"):
		return models.LevelModerate
	default:
		return models.LevelInfo
	}
}

var phenomenonKinds = []struct {
	keyword string
	kind    models.Kind
}{
	{"태풍", models.KindTyphoon},
	{"호우", models.KindHeavyRain},
	{"대설", models.KindHeavySnow},
	{"강풍", models.KindStrongWind},
	{"풍랑", models.KindHighSeas},
	{"한파", models.KindColdWave},
	{"폭염", models.KindHeatWave},
	{"건조", models.KindDrought},
	{"황사", models.KindYellowDust},
	{"안개", models.KindFog},
	{"해일", models.KindTsunami},
}

func kindFromPhenomenon(label string) models.Kind {
	for _, entry := range phenomenonKinds {
		if strings.Contains(label, entry.keyword) {
			return entry.kind
		}
	}
	return models.KindOther
}
