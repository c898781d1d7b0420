package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Effect target bits. They share values with the role flags of a spell
// target record so an effect's mask can be tested against them directly.
const (
	EffectTargetCaster  uint32 = 1 << 0
	EffectTargetPrimary uint32 = 1 << 1
	EffectTargetArea    uint32 = 1 << 2
)

// AllPhases matches every phase of a multiphase ability.
const AllPhases uint32 = 0xFFFFFFFF

// AbilityInfo holds a single ability template.
type AbilityInfo struct {
	ID         uint32
	Name       string
	CastMethod CastMethod

	CastTime            time.Duration
	ChannelInitialDelay time.Duration
	ChannelMaxTime      time.Duration
	ChannelPulseTime    time.Duration
	ThresholdTime       time.Duration // RapidTap idle window, ChargeRelease max hold
	Duration            time.Duration // Aura lifetime (0 = until cancelled)

	Cooldown           time.Duration
	GlobalCooldownType uint32
	GlobalCooldown     time.Duration
	MaxCharges         uint32
	ChargeRecharge     time.Duration

	CasterCastPrereq uint32
	PrereqRunners    []uint32 // any met prereq overrides cast and resource checks
	CasterCCMask     uint32   // crowd-control states that block casting
	Costs            []ResourceCost

	TargetMaxRange       float64
	Mechanics            TargetMechanics
	Aoe                  AoeConstraints
	UniqueTargets        bool // a unit may be claimed by only one telegraph per pass
	PositionalCreatureID uint32
	CanMoveWhileCasting  bool
	HasIcon              bool

	Phases     []PhaseInfo
	Thresholds []ThresholdInfo
	Effects    []EffectInfo
	Telegraphs []TelegraphInfo
}

type ResourceCost struct {
	Vital  Vital
	Amount float64
}

type TargetMechanics struct {
	Type  TargetMechanicType
	Flags TargetMechanicFlags
}

type AoeConstraints struct {
	TargetCount int // 0 = uncapped
	Selection   AoeSelection
}

type PhaseInfo struct {
	OrderIndex uint8
	PhaseDelay time.Duration
}

// ThresholdInfo is one stage of a ChargeRelease or RapidTap ability.
type ThresholdInfo struct {
	OrderIndex        uint32
	ThresholdDuration time.Duration
	AbilityID         uint32 // ability cast when this stage is released
}

// EffectInfo describes one effect of an ability.
type EffectInfo struct {
	ID                uint32
	Type              EffectType
	TargetFlags       uint32
	PhaseFlags        uint32
	DelayTime         time.Duration
	TickTime          time.Duration
	DurationTime      time.Duration
	Flags             EffectFlags
	PrereqCasterApply uint32
	PrereqTargetApply uint32
	// DataBits carry type-specific parameters. Proxy effects read
	// [0] ability id, [1] ticking ability id, [6] recipient prereq.
	// Damage and heal effects read [0] base magnitude, [1] scaling percent.
	DataBits [10]uint32
}

// Periodic reports whether the effect re-triggers on a timer.
func (e *EffectInfo) Periodic() bool { return e.TickTime > 0 }

// TelegraphInfo describes a telegraph shape relative to its anchor.
type TelegraphInfo struct {
	ID          uint32
	Shape       TelegraphShape
	Radius      float64
	InnerRadius float64 // ring only
	Angle       float64 // cone only, full opening in degrees
	Length      float64 // rectangle only
	Width       float64 // rectangle only
	OffsetFwd   float64
	OffsetRight float64
	Rotation    float64 // degrees added to the anchor yaw
	PhaseFlags  uint32
	TargetFlags TelegraphTargetFlags
}

// StageFor returns the threshold stage with the given order index.
func (a *AbilityInfo) StageFor(value uint32) (*ThresholdInfo, bool) {
	for i := range a.Thresholds {
		if a.Thresholds[i].OrderIndex == value {
			return &a.Thresholds[i], true
		}
	}
	return nil, false
}

// Effect returns the effect with the given id.
func (a *AbilityInfo) Effect(id uint32) (*EffectInfo, bool) {
	for i := range a.Effects {
		if a.Effects[i].ID == id {
			return &a.Effects[i], true
		}
	}
	return nil, false
}

// AbilityTable holds all abilities indexed by ID.
type AbilityTable struct {
	abilities map[uint32]*AbilityInfo
	order     []uint32
}

// NewAbilityTable builds a table from already constructed infos.
func NewAbilityTable(infos ...*AbilityInfo) *AbilityTable {
	t := &AbilityTable{abilities: make(map[uint32]*AbilityInfo, len(infos))}
	for _, a := range infos {
		t.add(a)
	}
	return t
}

func (t *AbilityTable) add(a *AbilityInfo) {
	if _, ok := t.abilities[a.ID]; !ok {
		t.order = append(t.order, a.ID)
	}
	t.abilities[a.ID] = a
}

// Get returns an ability by ID, or nil if not found.
func (t *AbilityTable) Get(id uint32) *AbilityInfo {
	return t.abilities[id]
}

// Count returns total loaded abilities.
func (t *AbilityTable) Count() int {
	return len(t.abilities)
}

// All returns all abilities in file order.
func (t *AbilityTable) All() []*AbilityInfo {
	result := make([]*AbilityInfo, 0, len(t.order))
	for _, id := range t.order {
		result = append(result, t.abilities[id])
	}
	return result
}

// --- YAML loading ---

type abilityEntry struct {
	ID                  uint32   `yaml:"id"`
	Name                string   `yaml:"name"`
	CastMethod          string   `yaml:"cast_method"`
	CastTime            int      `yaml:"cast_time"` // ms
	ChannelInitialDelay int      `yaml:"channel_initial_delay"`
	ChannelMaxTime      int      `yaml:"channel_max_time"`
	ChannelPulseTime    int      `yaml:"channel_pulse_time"`
	ThresholdTime       int      `yaml:"threshold_time"`
	Duration            int      `yaml:"duration"`
	Cooldown            int      `yaml:"cooldown"`
	GlobalCooldownType  uint32   `yaml:"gcd_type"`
	GlobalCooldown      int      `yaml:"gcd"`
	MaxCharges          uint32   `yaml:"max_charges"`
	ChargeRecharge      int      `yaml:"charge_recharge"`
	CasterCastPrereq    uint32   `yaml:"caster_cast_prereq"`
	PrereqRunners       []uint32 `yaml:"prereq_runners"`
	CasterCCMask        uint32   `yaml:"caster_cc_mask"`
	Costs               []struct {
		Vital  string  `yaml:"vital"`
		Amount float64 `yaml:"amount"`
	} `yaml:"costs"`
	TargetMaxRange       float64  `yaml:"max_range"`
	TargetType           string   `yaml:"target_type"`
	TargetFlags          []string `yaml:"target_flags"`
	AoeTargetCount       int      `yaml:"aoe_target_count"`
	AoeSelection         string   `yaml:"aoe_selection"`
	UniqueTargets        bool     `yaml:"unique_targets"`
	PositionalCreatureID uint32   `yaml:"positional_creature_id"`
	CanMoveWhileCasting  bool     `yaml:"can_move_while_casting"`
	HasIcon              bool     `yaml:"has_icon"`
	Phases               []struct {
		OrderIndex uint8 `yaml:"order_index"`
		Delay      int   `yaml:"delay"`
	} `yaml:"phases"`
	Thresholds []struct {
		OrderIndex uint32 `yaml:"order_index"`
		Duration   int    `yaml:"duration"`
		AbilityID  uint32 `yaml:"ability_id"`
	} `yaml:"thresholds"`
	Effects    []effectEntry    `yaml:"effects"`
	Telegraphs []telegraphEntry `yaml:"telegraphs"`
}

type effectEntry struct {
	ID                uint32   `yaml:"id"`
	Type              string   `yaml:"type"`
	Targets           []string `yaml:"targets"`
	PhaseFlags        *uint32  `yaml:"phase_flags"`
	Delay             int      `yaml:"delay"`
	Tick              int      `yaml:"tick"`
	Duration          int      `yaml:"duration"`
	CancelOnly        bool     `yaml:"cancel_only"`
	PrereqCasterApply uint32   `yaml:"prereq_caster_apply"`
	PrereqTargetApply uint32   `yaml:"prereq_target_apply"`
	Data              []uint32 `yaml:"data"`
}

type telegraphEntry struct {
	ID          uint32   `yaml:"id"`
	Shape       string   `yaml:"shape"`
	Radius      float64  `yaml:"radius"`
	InnerRadius float64  `yaml:"inner_radius"`
	Angle       float64  `yaml:"angle"`
	Length      float64  `yaml:"length"`
	Width       float64  `yaml:"width"`
	OffsetFwd   float64  `yaml:"offset_fwd"`
	OffsetRight float64  `yaml:"offset_right"`
	Rotation    float64  `yaml:"rotation"`
	PhaseFlags  *uint32  `yaml:"phase_flags"`
	Targets     []string `yaml:"targets"`
}

type abilityListFile struct {
	Abilities []abilityEntry `yaml:"abilities"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// LoadAbilityTable loads ability definitions from YAML.
func LoadAbilityTable(path string) (*AbilityTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abilities: %w", err)
	}
	return ParseAbilityTable(raw)
}

// ParseAbilityTable decodes an ability list document.
func ParseAbilityTable(raw []byte) (*AbilityTable, error) {
	var f abilityListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse abilities: %w", err)
	}
	t := &AbilityTable{abilities: make(map[uint32]*AbilityInfo, len(f.Abilities))}
	for i := range f.Abilities {
		e := &f.Abilities[i]
		if _, dup := t.abilities[e.ID]; dup {
			return nil, fmt.Errorf("ability %d: duplicate id", e.ID)
		}
		info, err := e.toInfo()
		if err != nil {
			return nil, fmt.Errorf("ability %d: %w", e.ID, err)
		}
		t.add(info)
	}
	for _, a := range t.abilities {
		for _, th := range a.Thresholds {
			if t.abilities[th.AbilityID] == nil {
				return nil, fmt.Errorf("ability %d: threshold %d references unknown ability %d", a.ID, th.OrderIndex, th.AbilityID)
			}
		}
	}
	return t, nil
}

func (e *abilityEntry) toInfo() (*AbilityInfo, error) {
	method, err := parseCastMethod(e.CastMethod)
	if err != nil {
		return nil, err
	}
	mech, ok := targetMechanicNames[e.TargetType]
	if !ok && e.TargetType != "" {
		return nil, fmt.Errorf("unknown target type %q", e.TargetType)
	}
	if e.TargetType == "" {
		mech = TargetMechanicArea
	}
	flags, err := parseTargetFlags(e.TargetFlags)
	if err != nil {
		return nil, err
	}
	sel, ok := aoeSelectionNames[e.AoeSelection]
	if !ok {
		return nil, fmt.Errorf("unknown aoe selection %q", e.AoeSelection)
	}
	if method == CastChanneled || method == CastChanneledField {
		if e.ChannelPulseTime <= 0 {
			return nil, fmt.Errorf("channeled ability needs channel_pulse_time")
		}
	}

	info := &AbilityInfo{
		ID:                   e.ID,
		Name:                 e.Name,
		CastMethod:           method,
		CastTime:             ms(e.CastTime),
		ChannelInitialDelay:  ms(e.ChannelInitialDelay),
		ChannelMaxTime:       ms(e.ChannelMaxTime),
		ChannelPulseTime:     ms(e.ChannelPulseTime),
		ThresholdTime:        ms(e.ThresholdTime),
		Duration:             ms(e.Duration),
		Cooldown:             ms(e.Cooldown),
		GlobalCooldownType:   e.GlobalCooldownType,
		GlobalCooldown:       ms(e.GlobalCooldown),
		MaxCharges:           e.MaxCharges,
		ChargeRecharge:       ms(e.ChargeRecharge),
		CasterCastPrereq:     e.CasterCastPrereq,
		PrereqRunners:        e.PrereqRunners,
		CasterCCMask:         e.CasterCCMask,
		TargetMaxRange:       e.TargetMaxRange,
		Mechanics:            TargetMechanics{Type: mech, Flags: flags},
		Aoe:                  AoeConstraints{TargetCount: e.AoeTargetCount, Selection: sel},
		UniqueTargets:        e.UniqueTargets,
		PositionalCreatureID: e.PositionalCreatureID,
		CanMoveWhileCasting:  e.CanMoveWhileCasting,
		HasIcon:              e.HasIcon,
	}
	for _, c := range e.Costs {
		v, err := ParseVital(c.Vital)
		if err != nil {
			return nil, err
		}
		info.Costs = append(info.Costs, ResourceCost{Vital: v, Amount: c.Amount})
	}
	for _, p := range e.Phases {
		info.Phases = append(info.Phases, PhaseInfo{OrderIndex: p.OrderIndex, PhaseDelay: ms(p.Delay)})
	}
	for _, th := range e.Thresholds {
		info.Thresholds = append(info.Thresholds, ThresholdInfo{
			OrderIndex:        th.OrderIndex,
			ThresholdDuration: ms(th.Duration),
			AbilityID:         th.AbilityID,
		})
	}
	for i := range e.Effects {
		eff, err := e.Effects[i].toInfo()
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", e.Effects[i].ID, err)
		}
		info.Effects = append(info.Effects, eff)
	}
	for i := range e.Telegraphs {
		tg, err := e.Telegraphs[i].toInfo()
		if err != nil {
			return nil, fmt.Errorf("telegraph %d: %w", e.Telegraphs[i].ID, err)
		}
		info.Telegraphs = append(info.Telegraphs, tg)
	}
	return info, nil
}

func (e *effectEntry) toInfo() (EffectInfo, error) {
	typ, err := parseEffectType(e.Type)
	if err != nil {
		return EffectInfo{}, err
	}
	var targets uint32
	for _, n := range e.Targets {
		switch n {
		case "caster":
			targets |= EffectTargetCaster
		case "target":
			targets |= EffectTargetPrimary
		case "area":
			targets |= EffectTargetArea
		default:
			return EffectInfo{}, fmt.Errorf("unknown effect target %q", n)
		}
	}
	if len(e.Data) > 10 {
		return EffectInfo{}, fmt.Errorf("data has %d values, max 10", len(e.Data))
	}
	info := EffectInfo{
		ID:                e.ID,
		Type:              typ,
		TargetFlags:       targets,
		PhaseFlags:        AllPhases,
		DelayTime:         ms(e.Delay),
		TickTime:          ms(e.Tick),
		DurationTime:      ms(e.Duration),
		PrereqCasterApply: e.PrereqCasterApply,
		PrereqTargetApply: e.PrereqTargetApply,
	}
	if e.PhaseFlags != nil {
		info.PhaseFlags = *e.PhaseFlags
	}
	if e.CancelOnly {
		info.Flags |= EffectFlagCancelOnly
	}
	copy(info.DataBits[:], e.Data)
	return info, nil
}

func (e *telegraphEntry) toInfo() (TelegraphInfo, error) {
	shape, ok := telegraphShapeNames[e.Shape]
	if !ok {
		return TelegraphInfo{}, fmt.Errorf("unknown shape %q", e.Shape)
	}
	targets, err := parseTelegraphTargets(e.Targets)
	if err != nil {
		return TelegraphInfo{}, err
	}
	if shape == ShapeRing && e.InnerRadius >= e.Radius {
		return TelegraphInfo{}, fmt.Errorf("ring inner_radius %.2f must be below radius %.2f", e.InnerRadius, e.Radius)
	}
	info := TelegraphInfo{
		ID:          e.ID,
		Shape:       shape,
		Radius:      e.Radius,
		InnerRadius: e.InnerRadius,
		Angle:       e.Angle,
		Length:      e.Length,
		Width:       e.Width,
		OffsetFwd:   e.OffsetFwd,
		OffsetRight: e.OffsetRight,
		Rotation:    e.Rotation,
		PhaseFlags:  AllPhases,
		TargetFlags: targets,
	}
	if e.PhaseFlags != nil {
		info.PhaseFlags = *e.PhaseFlags
	}
	return info, nil
}
