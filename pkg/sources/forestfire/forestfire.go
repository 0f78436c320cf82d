// Package forestfire polls the national forest-fire situation board. The
// board is a JSON list of active incidents keyed by a stable incident id;
// the checkpoint is a seen-set with a 24h TTL so a long-burning fire is
// announced once, not on every poll.
package forestfire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/sources/parseutil"
	"github.com/krsafety/alertfeed/pkg/sources/seenset"
)

const (
	defaultBaseURL = "https://fd.forest.go.kr/ffas/pubConn/occur/getShowFireInfoList.do"
	requestTimeout = 15 * time.Second
	pollInterval   = 120 * time.Second
	seenTTL        = 24 * time.Hour

	timeLayout = "2006/01/02 15:04:05"
)

// Situation-board progress codes.
const (
	progressReported   = "01" // 접수 — reported, response not yet under way
	progressInProgress = "02" // 진화중 — suppression in progress
	progressCompleted  = "03" // 진화완료 — extinguished
)

// incident is one board entry as the feed serves it.
type incident struct {
	ID                string `json:"frfrInfoId"`
	ReportedAt        string `json:"frfrSttmnDt"`
	Address           string `json:"frfrSttmnAddr"`
	ProgressCode      string `json:"frfrPrgrsStcd"`
	ProgressName      string `json:"frfrPrgrsStcdNm"`
	ExtinguishPercent string `json:"frfrPotfrRt"`
}

type boardResponse struct {
	Incidents []incident `json:"fireShowInfoList"`
}

// Adapter polls the forest-fire situation board.
type Adapter struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// New returns a ForestFire adapter with production defaults.
func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

func (a *Adapter) SourceID() models.Source {
	return models.SourceForestFire
}

func (a *Adapter) PollInterval() time.Duration {
	return pollInterval
}

// Run fetches the board, prunes the seen-set, and emits one event per
// incident id not yet in the set. Every listed id is (re)recorded so the
// TTL measures time since last sighting, not first.
func (a *Adapter) Run(ctx context.Context, state *string) (ingest.Result, error) {
	prior := ingest.Result{NextState: state}

	incidents, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("Forest-fire fetch failed", "error", err)
		return prior, nil
	}

	now := a.now().UTC()
	seen := seenset.Parse(state)
	seen.Prune(now, seenTTL)

	drafts := make([]ingest.Draft, 0, len(incidents))
	for _, inc := range incidents {
		if inc.ID == "" {
			slog.Warn("Forest-fire incident without id, skipping", "address", inc.Address)
			continue
		}
		if !seen.Has(inc.ID) {
			drafts = append(drafts, draftFromIncident(inc))
		}
		seen.Add(inc.ID, now)
	}

	nextState, err := seen.Encode()
	if err != nil {
		slog.Warn("Forest-fire seen-set encode failed", "error", err)
		return prior, nil
	}
	return ingest.Result{Events: drafts, NextState: nextState}, nil
}

func (a *Adapter) fetch(ctx context.Context) ([]incident, error) {
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

	var decoded boardResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}
	return decoded.Incidents, nil
}

func draftFromIncident(inc incident) ingest.Draft {
	address := parseutil.CollapseWhitespace(inc.Address)

	title := "산불 발생"
	if address != "" {
		title = fmt.Sprintf("%s 산불 발생", address)
	}

	var region *string
	if address != "" {
		region = &address
	}

	return ingest.Draft{
		Kind:       models.KindForestFire,
		Title:      title,
		OccurredAt: parseutil.ParseKST(timeLayout, inc.ReportedAt),
		RegionText: region,
		Level:      levelFromProgress(inc.ProgressCode),
		Payload: map[string]any{
			"incidentId":        inc.ID,
			"progressCode":      inc.ProgressCode,
			"progressName":      inc.ProgressName,
			"extinguishPercent": inc.ExtinguishPercent,
		},
	}
}

// Only active incidents carry weight: a freshly reported fire is the most
// urgent, one under suppression slightly less. Completed fires and codes
// outside the known set stay informational.
func levelFromProgress(code string) models.Level {
	switch code {
	case progressReported:
		return models.LevelSevere
	case progressInProgress:
		return models.LevelModerate
	case progressCompleted:
		return models.LevelInfo
	default:
		return models.LevelInfo
	}
}
