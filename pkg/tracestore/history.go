package tracestore

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/trace"
)

// RuleStatDrift is the SARIF rule ID for statistics that moved between snapshots.
const RuleStatDrift = "trace-stat-drift"

// DriftDriver is the SARIF tool name for drift runs.
const DriftDriver = "tracekit-drift"

// FolioStats are the statistics of one stored report.
type FolioStats struct {
	Folio               string `json:"folio"`
	Tokens              int    `json:"tokens"`
	KernelContacts      int    `json:"kernel_contacts"`
	HazardAdjacent      int    `json:"hazard_adjacent"`
	NavigationSequences int    `json:"navigation_sequences"`
}

func (f FolioStats) values() map[string]int {
	return map[string]int{
		trace.StatTokens:              f.Tokens,
		trace.StatKernelContacts:      f.KernelContacts,
		trace.StatHazardAdjacent:      f.HazardAdjacent,
		trace.StatNavigationSequences: f.NavigationSequences,
	}
}

var statOrder = []string{
	trace.StatTokens,
	trace.StatKernelContacts,
	trace.StatHazardAdjacent,
	trace.StatNavigationSequences,
}

// Snapshot captures every report's statistics at a point in time, keyed by path.
type Snapshot struct {
	Timestamp time.Time             `json:"timestamp"`
	Week      string                `json:"week"`
	Folios    map[string]FolioStats `json:"folios"`
}

// History stores snapshots oldest first.
type History struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// LoadHistory reads history from a JSON file. Returns empty history if file doesn't exist.
func LoadHistory(path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return History{Snapshots: []Snapshot{}}, nil
		}
		return History{}, err
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("decode history %s: %w", path, err)
	}

	return h, nil
}

// SaveHistory writes history to a JSON file.
func SaveHistory(path string, h History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// AddSnapshot appends a new snapshot to history.
func (h *History) AddSnapshot(s Snapshot) {
	h.Snapshots = append(h.Snapshots, s)
}

// LastSnapshot returns the most recent snapshot, or nil if empty.
func (h *History) LastSnapshot() *Snapshot {
	if len(h.Snapshots) == 0 {
		return nil
	}
	return &h.Snapshots[len(h.Snapshots)-1]
}

// LastWeekSnapshot returns the most recent snapshot from a different week than current.
func (h *History) LastWeekSnapshot(currentWeek string) *Snapshot {
	for i := len(h.Snapshots) - 1; i >= 0; i-- {
		if h.Snapshots[i].Week != currentWeek {
			return &h.Snapshots[i]
		}
	}
	return nil
}

// ISOWeek returns the ISO week string (e.g., "2025-W49") for a given time.
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Drift compares two snapshots and returns a warning for every statistic
// whose relative change exceeds threshold percent, and for every report
// present in prev but gone from cur. Reports new in cur are not drift.
func Drift(prev, cur Snapshot, threshold float64) []sarif.Result {
	var results []sarif.Result

	for path, now := range cur.Folios {
		before, ok := prev.Folios[path]
		if !ok {
			continue
		}
		was, is := before.values(), now.values()
		for _, stat := range statOrder {
			diff := percentageDiff(was[stat], is[stat])
			if math.Abs(diff) <= threshold {
				continue
			}
			res := sarif.NewResult(RuleStatDrift, sarif.LevelWarning,
				fmt.Sprintf("[%s] %s: %d → %d (%+.1f%% since %s)", now.Folio, stat, was[stat], is[stat], diff, prev.Week),
				path, 0)
			res.Properties = map[string]any{
				"statistic": stat,
				"previous":  was[stat],
				"current":   is[stat],
				"since":     prev.Week,
			}
			results = append(results, res)
		}
	}

	for path, before := range prev.Folios {
		if _, ok := cur.Folios[path]; ok {
			continue
		}
		res := sarif.NewResult(RuleStatDrift, sarif.LevelWarning,
			fmt.Sprintf("[%s] removed since %s", before.Folio, prev.Week), path, 0)
		res.Properties = map[string]any{"removed": true, "since": prev.Week}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].URI() != results[j].URI() {
			return results[i].URI() < results[j].URI()
		}
		return statIndex(results[i]) < statIndex(results[j])
	})
	return results
}

func statIndex(r sarif.Result) int {
	stat, _ := r.Properties["statistic"].(string)
	for i, s := range statOrder {
		if s == stat {
			return i
		}
	}
	return len(statOrder)
}

func percentageDiff(baseline, current int) float64 {
	denom := baseline
	if denom == 0 {
		denom = 1
	}
	return 100 * float64(current-baseline) / float64(denom)
}

// DriftLog wraps drift results in a SARIF log.
func DriftLog(results []sarif.Result) *sarif.Log {
	log := sarif.NewLog()
	run := sarif.NewRun(DriftDriver, results)
	run.Tool.Driver.Rules = []sarif.ReportingDescriptor{{
		ID:               RuleStatDrift,
		ShortDescription: &sarif.Message{Text: "report statistic changed more than the drift threshold"},
		DefaultLevel:     sarif.LevelWarning,
	}}
	log.Runs = append(log.Runs, run)
	return log
}
