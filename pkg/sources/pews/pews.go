// Package pews polls the KMA PEWS earthquake early-warning binary stream.
//
// The server exposes one frame per second, addressed by a KST timestamp the
// client must compute from its own clock corrected by a server-clock offset.
// A frame is a short header whose bits carry the alert phase, a station
// block, and a 75-byte trailer: 60 bytes of percent-encoded location text
// followed by 15 bit-packed bytes of quake parameters. Only phases 2 (fast
// info) and 3 (detail) describe an event.
//
// The checkpoint is the last emitted (eqkId, phase) pair. A new phase of an
// already-announced quake is emitted downgraded to Info; the same pair is
// suppressed entirely.
package pews

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/sources/parseutil"
)

const (
	defaultBaseURL = "https://www.weather.go.kr/pews/data"
	simBaseURL     = "https://www.weather.go.kr/pews/data/eqk"
	requestTimeout = 10 * time.Second
	pollInterval   = time.Second

	headerLen    = 4
	simHeaderLen = 1
	trailerLen   = 75
	textLen      = 60

	urlTimeLayout = "20060102150405"

	// Frame eqk ids are offsets from this base.
	eqkIDBase = 2_000_000_000

	// A simulation replays exactly this much of the historical stream.
	simWindow = 5 * time.Minute
)

// Alert phases carried in the header bits.
const (
	phaseNone   = 1
	phaseAlert  = 2
	phaseDetail = 3
)

// regionNames indexes the 17-bit affected-regions mask, MSB first.
var regionNames = [17]string{
	"서울", "부산", "대구", "인천", "광주", "대전", "울산", "세종",
	"경기", "강원", "충북", "충남", "전북", "전남", "경북", "경남", "제주",
}

// checkpoint is the adapter's opaque state.
type checkpoint struct {
	LastEqkID int64 `json:"lastEqkId"`
	LastPhase int   `json:"lastPhase"`
}

// quakeInfo is one decoded trailer.
type quakeInfo struct {
	Location  string
	Lat       float64
	Lon       float64
	Magnitude float64
	DepthKm   float64
	Origin    time.Time
	EqkID     int64
	Intensity int
	Regions   []string
}

// Adapter polls the PEWS stream.
type Adapter struct {
	baseURL string
	client  *http.Client
	now     func() time.Time

	sim      bool
	simEqkID string
	simStart time.Time // historical origin being replayed
	simBegun time.Time // wall clock when the replay started

	// Server-clock offset estimate, re-derived from every response.
	mu     sync.Mutex
	offset time.Duration
}

// New returns a live-stream PEWS adapter.
func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

// NewSimulation returns a PEWS adapter replaying the given historical event.
// startAt is the event's origin timestamp in RFC 3339; the replay covers the
// five minutes following it, mapped onto the five minutes after construction.
func NewSimulation(eqkID, startAt string) (*Adapter, error) {
	origin, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return nil, fmt.Errorf("invalid simulation start %q: %w", startAt, err)
	}
	return &Adapter{
		baseURL:  simBaseURL,
		client:   &http.Client{Timeout: requestTimeout},
		now:      time.Now,
		sim:      true,
		simEqkID: eqkID,
		simStart: origin,
		simBegun: time.Now(),
	}, nil
}

func (a *Adapter) SourceID() models.Source {
	return models.SourceQuakeAlert
}

func (a *Adapter) PollInterval() time.Duration {
	return pollInterval
}

// Run fetches the current frame and emits at most one event.
func (a *Adapter) Run(ctx context.Context, state *string) (ingest.Result, error) {
	prior := ingest.Result{NextState: state}

	if a.sim && a.now().Sub(a.simBegun) > simWindow {
		return prior, nil
	}

	frame, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("PEWS fetch failed", "error", err)
		return prior, nil
	}

	hdrLen := headerLen
	if a.sim {
		hdrLen = simHeaderLen
	}
	if len(frame) < hdrLen+trailerLen {
		slog.Warn("PEWS frame too short", "bytes", len(frame))
		return prior, nil
	}

	phase := phaseFromHeader(frame[0])
	if phase < phaseAlert {
		return prior, nil
	}

	info := decodeTrailer(frame[len(frame)-trailerLen:])

	cp := parseCheckpoint(state)
	if cp != nil && cp.LastEqkID == info.EqkID && cp.LastPhase == phase {
		return prior, nil
	}

	level := levelFromIntensity(info.Intensity)
	if cp != nil && cp.LastEqkID == info.EqkID {
		// Later phase of an already-announced quake: inform, don't re-alert.
		level = models.LevelInfo
	}

	nextState, err := encodeCheckpoint(checkpoint{LastEqkID: info.EqkID, LastPhase: phase})
	if err != nil {
		slog.Warn("PEWS checkpoint encode failed", "error", err)
		return prior, nil
	}
	return ingest.Result{
		Events:    []ingest.Draft{draftFromInfo(info, phase, level)},
		NextState: nextState,
	}, nil
}

func (a *Adapter) fetch(ctx context.Context) ([]byte, error) {
	url := a.frameURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	a.updateOffset(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// frameURL addresses the frame for the current instant: wall clock corrected
// by the server offset in live mode, the warped historical timeline in
// simulation.
func (a *Adapter) frameURL() string {
	var at time.Time
	if a.sim {
		at = a.simStart.Add(a.now().Sub(a.simBegun))
	} else {
		a.mu.Lock()
		offset := a.offset
		a.mu.Unlock()
		at = a.now().Add(-offset)
	}

	stamp := at.In(parseutil.KST).Format(urlTimeLayout)
	if a.sim {
		return fmt.Sprintf("%s/%s/%s.b", a.baseURL, a.simEqkID, stamp)
	}
	return fmt.Sprintf("%s/%s.b", a.baseURL, stamp)
}

// updateOffset re-derives the clock offset from the response: the PEWS `ST`
// header carries seconds-since-epoch, the standard Date header is the
// fallback. Clamped non-negative so a server clock ahead of ours never asks
// for future frames.
func (a *Adapter) updateOffset(header http.Header) {
	serverTime, ok := serverTimeFromHeaders(header)
	if !ok {
		return
	}
	offset := a.now().Sub(serverTime)
	if offset < 0 {
		offset = 0
	}
	a.mu.Lock()
	a.offset = offset
	a.mu.Unlock()
}

func serverTimeFromHeaders(header http.Header) (time.Time, bool) {
	if st := header.Get("ST"); st != "" {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(st), 64)
		if err == nil {
			sec := int64(seconds)
			nsec := int64((seconds - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec), true
		}
		slog.Warn("Malformed PEWS ST header", "value", st)
	}
	if date := header.Get("Date"); date != "" {
		parsed, err := http.ParseTime(date)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Header bit layout: bit 0 (MSB) is reserved and ignored; bit 1 set means an
// event is live; bit 2 set means the detailed solution is out.
func phaseFromHeader(b byte) int {
	switch {
	case b&0x20 != 0:
		return phaseDetail
	case b&0x40 != 0:
		return phaseAlert
	default:
		return phaseNone
	}
}

// decodeTrailer unpacks the 75-byte trailer: 60 bytes of percent-encoded
// location text, then 120 bits of packed fields.
//
//	lat[0:10] lon[10:20] mag×10[20:27] depth×10[27:37] unix[37:69]
//	eqkId[69:95] intensity[95:99] regions[99:116]
func decodeTrailer(trailer []byte) quakeInfo {
	location := parseutil.CollapseWhitespace(
		parseutil.PercentDecode(strings.TrimRight(string(trailer[:textLen]), "\x00 ")))

	bits := trailer[textLen:]

	mask := parseutil.ReadBits(bits, 99, 17)
	var regions []string
	for i, name := range regionNames {
		if mask>>(16-i)&1 == 1 {
			regions = append(regions, name)
		}
	}

	return quakeInfo{
		Location:  location,
		Lat:       30 + float64(parseutil.ReadBits(bits, 0, 10))/100,
		Lon:       124 + float64(parseutil.ReadBits(bits, 10, 10))/100,
		Magnitude: float64(parseutil.ReadBits(bits, 20, 7)) / 10,
		DepthKm:   float64(parseutil.ReadBits(bits, 27, 10)) / 10,
		Origin:    time.Unix(int64(parseutil.ReadBits(bits, 37, 32)), 0).UTC(),
		EqkID:     int64(parseutil.ReadBits(bits, 69, 26)) + eqkIDBase,
		Intensity: int(parseutil.ReadBits(bits, 95, 4)),
		Regions:   regions,
	}
}

func draftFromInfo(info quakeInfo, phase int, level models.Level) ingest.Draft {
	label := "지진속보"
	if phase == phaseDetail {
		label = "지진정보"
	}
	title := parseutil.CollapseWhitespace(
		fmt.Sprintf("%s 규모 %.1f %s", label, info.Magnitude, info.Location))

	var region *string
	if info.Location != "" {
		region = &info.Location
	}

	origin := info.Origin
	return ingest.Draft{
		Kind:       models.KindEarthquake,
		Title:      title,
		OccurredAt: &origin,
		RegionText: region,
		Level:      level,
		Payload: map[string]any{
			"eqkId":     info.EqkID,
			"phase":     phase,
			"magnitude": info.Magnitude,
			"depthKm":   info.DepthKm,
			"lat":       info.Lat,
			"lon":       info.Lon,
			"intensity": info.Intensity,
			"regions":   info.Regions,
		},
	}
}

// Severity by estimated maximum intensity (MMI).
func levelFromIntensity(intensity int) models.Level {
	switch {
	case intensity <= 1:
		return models.LevelInfo
	case intensity <= 3:
		return models.LevelMinor
	case intensity == 4:
		return models.LevelModerate
	case intensity <= 6:
		return models.LevelSevere
	default:
		return models.LevelCritical
	}
}

func parseCheckpoint(state *string) *checkpoint {
	if state == nil {
		return nil
	}
	var cp checkpoint
	if err := json.Unmarshal([]byte(*state), &cp); err != nil {
		slog.Warn("Malformed PEWS checkpoint, resetting", "state", *state)
		return nil
	}
	return &cp
}

func encodeCheckpoint(cp checkpoint) (*string, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	encoded := string(data)
	return &encoded, nil
}
