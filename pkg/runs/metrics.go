package runs

import (
	"math"
	"sort"
	"strings"
	"time"
)

// PerHour returns earned / (realTimeSeconds / 3600). The rate is absent (nil)
// when either input is missing or the duration is not positive.
func PerHour(earned, realTimeSeconds float64) *float64 {
	if !finite(earned) || !finite(realTimeSeconds) || realTimeSeconds <= 0 {
		return nil
	}
	v := earned / (realTimeSeconds / 3600)
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RunType classifies what a run was played for.
type RunType string

const (
	RunTypeFarming    RunType = "farming"
	RunTypeMilestone  RunType = "milestone"
	RunTypeTournament RunType = "tournament"
)

// ParseRunType maps user input to a RunType; unknown or empty input is farming.
func ParseRunType(s string) RunType {
	switch RunType(strings.ToLower(strings.TrimSpace(s))) {
	case RunTypeMilestone:
		return RunTypeMilestone
	case RunTypeTournament, "tourney":
		return RunTypeTournament
	default:
		return RunTypeFarming
	}
}

// Header is the summary persisted alongside a run's full parsed values.
type Header struct {
	Recorded            time.Time `json:"recorded"`
	RunType             RunType   `json:"runType"`
	Tier                float64   `json:"tier"`
	Wave                float64   `json:"wave"`
	RealTime            float64   `json:"realTime"`
	RealTimeHours       *float64  `json:"realTimeHours"`
	CoinsPerHour        *float64  `json:"coinsPerHour"`
	CellsPerHour        *float64  `json:"cellsPerHour"`
	RerollShardsPerHour *float64  `json:"rerollShardsPerHour"`
}

// BuildHeader derives the run header from parsed values. A tournament tier
// ("14+", parsed as 14.5) forces RunTypeTournament.
func BuildHeader(p ParsedValues, recorded time.Time, runType RunType) Header {
	realTime := p.Value(SectionBattleReport, KeyRealTime)
	tier := p.Value(SectionBattleReport, KeyTier)
	if finite(tier) && tier != math.Trunc(tier) {
		runType = RunTypeTournament
	}
	if runType == "" {
		runType = RunTypeFarming
	}
	h := Header{
		Recorded:            recorded,
		RunType:             runType,
		Tier:                zeroIfNaN(tier),
		Wave:                zeroIfNaN(p.Value(SectionBattleReport, KeyWave)),
		RealTime:            zeroIfNaN(realTime),
		CoinsPerHour:        PerHour(p.Value(SectionBattleReport, KeyCoinsEarned), realTime),
		CellsPerHour:        PerHour(p.Value(SectionBattleReport, KeyCellsEarned), realTime),
		RerollShardsPerHour: PerHour(p.Value(SectionBattleReport, KeyRerollShardsEarned), realTime),
	}
	if finite(realTime) && realTime > 0 {
		hours := realTime / 3600
		h.RealTimeHours = &hours
	}
	return h
}

func zeroIfNaN(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

// DamageShareOptions bounds the damage-share breakdown. Limit caps the number
// of entries and Floor is the share (in percent) an entry must exceed.
type DamageShareOptions struct {
	Limit int
	Floor float64
}

// DefaultDamageShareOptions keeps the ten largest sources above 0.01%.
var DefaultDamageShareOptions = DamageShareOptions{Limit: 10, Floor: 0.01}

// DamageShare is one damage source's percentage of total damage dealt.
type DamageShare struct {
	Source string  `json:"from"`
	Key    Key     `json:"key"`
	Label  string  `json:"label"`
	Share  float64 `json:"damage"`
}

const damageSuffix = "Damage"

// DamageSources returns the combat keys named <source>Damage, in schema order.
func (r *Registry) DamageSources() []Key {
	var out []Key
	for _, k := range r.keys[SectionCombat] {
		if strings.HasSuffix(string(k), damageSuffix) && len(k) > len(damageSuffix) {
			out = append(out, k)
		}
	}
	return out
}

// DamageShare computes each source's share of damageDealt rounded to two
// decimals, sorted descending, keeping at most opts.Limit entries whose share
// is strictly greater than opts.Floor.
func (r *Registry) DamageShare(p ParsedValues, opts DamageShareOptions) ([]DamageShare, error) {
	sources := r.DamageSources()
	if len(sources) == 0 {
		return nil, &MetricError{Metric: "damage share", Message: "no damage keys in combat section"}
	}
	total := p.Value(SectionCombat, KeyDamageDealt)
	if !finite(total) || total <= 0 {
		return nil, &MetricError{Metric: "damage share", Message: "invalid value for damage dealt: " + p.Text(SectionCombat, KeyDamageDealt)}
	}

	shares := make([]DamageShare, 0, len(sources))
	for _, k := range sources {
		v := p.Value(SectionCombat, k)
		if !finite(v) {
			continue
		}
		source := strings.TrimSuffix(string(k), damageSuffix)
		shares = append(shares, DamageShare{
			Source: source,
			Key:    k,
			Label:  CamelCaseToLabel(source),
			Share:  math.Round(v*100/total*100) / 100,
		})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].Share > shares[j].Share })

	out := shares[:0]
	for i, s := range shares {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		if s.Share > opts.Floor {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &MetricError{Metric: "damage share", Message: "no damage data sources found"}
	}
	return out, nil
}
