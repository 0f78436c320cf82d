// Package safetymsg polls the government disaster text-message feed. The
// feed is a JSON list of broadcast messages with a monotonically increasing
// serial; the checkpoint is a scalar watermark holding the highest serial
// already emitted.
package safetymsg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/sources/parseutil"
)

const (
	defaultBaseURL = "https://www.safetydata.go.kr/V2/api/DSSP-IF-00247"
	requestTimeout = 15 * time.Second
	pollInterval   = 60 * time.Second

	timeLayout = "2006/01/02 15:04:05"
)

// message is one broadcast entry as the feed serves it.
type message struct {
	Serial        int64  `json:"SN"`
	CreatedAt     string `json:"CRT_DT"`
	Content       string `json:"MSG_CN"`
	Region        string `json:"RCPTN_RGN_NM"`
	EmergencyStep string `json:"EMRG_STEP_NM"`
	DisasterType  string `json:"DST_SE_NM"`
}

type feedResponse struct {
	Body []message `json:"body"`
}

// Adapter polls the disaster text-message feed.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// New returns a SafetyMessage adapter with production defaults.
func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (a *Adapter) SourceID() models.Source {
	return models.SourceSafetyMessage
}

func (a *Adapter) PollInterval() time.Duration {
	return pollInterval
}

// Run fetches the current message list and emits every message whose serial
// is above the stored watermark, in ascending serial order. The next state
// is the highest serial seen.
func (a *Adapter) Run(ctx context.Context, state *string) (ingest.Result, error) {
	prior := ingest.Result{NextState: state}

	watermark := parseWatermark(state)

	messages, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("Safety-message fetch failed", "error", err)
		return prior, nil
	}

	fresh := make([]message, 0, len(messages))
	maxSerial := watermark
	for _, m := range messages {
		if m.Serial > watermark {
			fresh = append(fresh, m)
		}
		if m.Serial > maxSerial {
			maxSerial = m.Serial
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Serial < fresh[j].Serial })

	drafts := make([]ingest.Draft, 0, len(fresh))
	for _, m := range fresh {
		drafts = append(drafts, draftFromMessage(m))
	}

	nextState := state
	if maxSerial > watermark {
		encoded := strconv.FormatInt(maxSerial, 10)
		nextState = &encoded
	}
	return ingest.Result{Events: drafts, NextState: nextState}, nil
}

func (a *Adapter) fetch(ctx context.Context) ([]message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	var decoded feedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return decoded.Body, nil
}

// parseWatermark decodes the scalar watermark state. A nil or malformed
// state resets to zero, re-emitting the full feed once; downstream absorbs
// duplicates by id only across the current list, which is bounded.
func parseWatermark(state *string) int64 {
	if state == nil {
		return 0
	}
	serial, err := strconv.ParseInt(strings.TrimSpace(*state), 10, 64)
	if err != nil {
		slog.Warn("Malformed safety-message watermark, resetting", "state", *state)
		return 0
	}
	return serial
}

func draftFromMessage(m message) ingest.Draft {
	text := parseutil.CollapseWhitespace(m.Content)

	var body *string
	if text != "" {
		body = &text
	}
	var region *string
	if r := parseutil.CollapseWhitespace(m.Region); r != "" {
		region = &r
	}

	return ingest.Draft{
		Kind:       kindFromDisasterType(m.DisasterType),
		Title:      titleFromText(text),
		Body:       body,
		OccurredAt: parseutil.ParseKST(timeLayout, m.CreatedAt),
		RegionText: region,
		Level:      levelFromStep(m.EmergencyStep),
		Payload: map[string]any{
			"serial":        m.Serial,
			"emergencyStep": m.EmergencyStep,
			"disasterType":  m.DisasterType,
		},
	}
}

const titleMaxRunes = 80

// titleFromText derives the title from the message body: the full text when
// short, truncated with an ellipsis otherwise.
func titleFromText(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + "…"
}

// Broadcast class to severity: 위급재난 (imminent danger) is the highest
// tier, 긴급재난 (urgent) the next; everything else is routine guidance.
func levelFromStep(step string) models.Level {
	switch {
	case strings.Contains(step, "위급"):
		return models.LevelCritical
	case strings.Contains(step, "긴급"):
		return models.LevelSevere
	default:
		return models.LevelModerate
	}
}

// kindKeywords maps the feed's disaster-type labels to event categories.
// Checked in order; first match wins.
var kindKeywords = []struct {
	keyword string
	kind    models.Kind
}{
	{"지진해일", models.KindEarthquakeTsunami},
	{"지진", models.KindEarthquake},
	{"해일", models.KindTsunami},
	{"태풍", models.KindTyphoon},
	{"호우", models.KindHeavyRain},
	{"대설", models.KindHeavySnow},
	{"강풍", models.KindStrongWind},
	{"풍랑", models.KindHighSeas},
	{"한파", models.KindColdWave},
	{"폭염", models.KindHeatWave},
	{"가뭄", models.KindDrought},
	{"황사", models.KindYellowDust},
	{"미세먼지", models.KindFineDust},
	{"안개", models.KindFog},
	{"홍수", models.KindFlood},
	{"침수", models.KindInundation},
	{"산사태", models.KindLandslide},
	{"댐", models.KindDamFailure},
	{"산불", models.KindForestFire},
	{"화재", models.KindFire},
	{"폭발", models.KindExplosion},
	{"붕괴", models.KindCollapse},
	{"교통", models.KindTrafficAccident},
	{"정전", models.KindPowerOutage},
	{"가스", models.KindGasLeak},
	{"단수", models.KindWaterOutage},
	{"감염병", models.KindInfectiousDisease},
	{"가축", models.KindLivestockDisease},
	{"해양", models.KindMarineAccident},
	{"화학", models.KindChemicalSpill},
	{"테러", models.KindTerror},
	{"민방공", models.KindCivilDefense},
	{"공습", models.KindAirRaid},
	{"실종", models.KindMissingPerson},
}

func kindFromDisasterType(label string) models.Kind {
	for _, entry := range kindKeywords {
		if strings.Contains(label, entry.keyword) {
			return entry.kind
		}
	}
	return models.KindOther
}
