package data

import "fmt"

// CastMethod selects the timing topology of a cast.
type CastMethod uint8

const (
	CastNormal CastMethod = iota
	CastChanneled
	CastChanneledField
	CastMultiphase
	CastChargeRelease
	CastRapidTap
	CastAura
	CastClientSideInteraction
	castMethodCount
)

var castMethodNames = [...]string{
	CastNormal:                "normal",
	CastChanneled:             "channeled",
	CastChanneledField:        "channeled_field",
	CastMultiphase:            "multiphase",
	CastChargeRelease:         "charge_release",
	CastRapidTap:              "rapid_tap",
	CastAura:                  "aura",
	CastClientSideInteraction: "client_side_interaction",
}

func (m CastMethod) String() string {
	if m < castMethodCount {
		return castMethodNames[m]
	}
	return fmt.Sprintf("cast_method(%d)", uint8(m))
}

// CastMethodCount is the number of known cast methods.
const CastMethodCount = int(castMethodCount)

// EffectType selects the handler that applies an effect.
type EffectType uint16

const (
	EffectDamage EffectType = iota + 1
	EffectHeal
	EffectProxy
	EffectBuff
	EffectActivate
	EffectKnockback
)

var effectTypeNames = map[EffectType]string{
	EffectDamage:    "damage",
	EffectHeal:      "heal",
	EffectProxy:     "proxy",
	EffectBuff:      "buff",
	EffectActivate:  "activate",
	EffectKnockback: "knockback",
}

func (t EffectType) String() string {
	if n, ok := effectTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("effect_type(%d)", uint16(t))
}

// EffectFlags modify effect lifetime.
type EffectFlags uint32

const (
	// EffectFlagCancelOnly keeps a zero-duration effect (and its cast) alive
	// until something cancels it.
	EffectFlagCancelOnly EffectFlags = 1 << 0
)

// TargetMechanicType describes who an ability is aimed at.
type TargetMechanicType uint8

const (
	TargetMechanicSelf TargetMechanicType = iota
	TargetMechanicPrimaryTarget
	TargetMechanicSecondary
	TargetMechanicArea
)

var targetMechanicNames = map[string]TargetMechanicType{
	"self":           TargetMechanicSelf,
	"primary_target": TargetMechanicPrimaryTarget,
	"secondary":      TargetMechanicSecondary,
	"area":           TargetMechanicArea,
}

// TargetMechanicFlags filter area candidates.
type TargetMechanicFlags uint32

const (
	TargetIsPlayer   TargetMechanicFlags = 1 << 0
	TargetIsEnemy    TargetMechanicFlags = 1 << 1
	TargetIsFriendly TargetMechanicFlags = 1 << 2
)

var targetMechanicFlagNames = map[string]TargetMechanicFlags{
	"player":   TargetIsPlayer,
	"enemy":    TargetIsEnemy,
	"friendly": TargetIsFriendly,
}

// AoeSelection orders area candidates before truncation.
type AoeSelection uint8

const (
	AoeNone AoeSelection = iota
	AoeClosest
	AoeFurthest
	AoeRandom
	AoeLowestHealth
	AoeMissingMostHealth
)

var aoeSelectionNames = map[string]AoeSelection{
	"":                    AoeNone,
	"none":                AoeNone,
	"closest":             AoeClosest,
	"furthest":            AoeFurthest,
	"random":              AoeRandom,
	"lowest_health":       AoeLowestHealth,
	"missing_most_health": AoeMissingMostHealth,
}

// TelegraphShape is the geometry of a telegraph.
type TelegraphShape uint8

const (
	ShapeCircle TelegraphShape = iota
	ShapeRing
	ShapeCone
	ShapeRectangle
)

var telegraphShapeNames = map[string]TelegraphShape{
	"circle":    ShapeCircle,
	"ring":      ShapeRing,
	"cone":      ShapeCone,
	"rectangle": ShapeRectangle,
}

// TelegraphTargetFlags restrict a telegraph to the caster or to others.
type TelegraphTargetFlags uint8

const (
	TelegraphSelf  TelegraphTargetFlags = 1 << 0
	TelegraphOther TelegraphTargetFlags = 1 << 1
)

// Vital is a unit resource that abilities may cost.
type Vital uint8

const (
	VitalHealth Vital = iota + 1
	VitalFocus
	VitalEndurance
	VitalShield
)

var vitalNames = map[string]Vital{
	"health":    VitalHealth,
	"focus":     VitalFocus,
	"endurance": VitalEndurance,
	"shield":    VitalShield,
}

func (v Vital) String() string {
	for n, x := range vitalNames {
		if x == v {
			return n
		}
	}
	return fmt.Sprintf("vital(%d)", uint8(v))
}

func parseCastMethod(s string) (CastMethod, error) {
	if s == "" {
		return CastNormal, nil
	}
	for i, n := range castMethodNames {
		if n == s {
			return CastMethod(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cast method %q", s)
}

func parseEffectType(s string) (EffectType, error) {
	for t, n := range effectTypeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown effect type %q", s)
}

func parseTargetFlags(names []string) (TargetMechanicFlags, error) {
	var f TargetMechanicFlags
	for _, n := range names {
		v, ok := targetMechanicFlagNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown target flag %q", n)
		}
		f |= v
	}
	return f, nil
}

func parseTelegraphTargets(names []string) (TelegraphTargetFlags, error) {
	var f TelegraphTargetFlags
	for _, n := range names {
		switch n {
		case "self":
			f |= TelegraphSelf
		case "other":
			f |= TelegraphOther
		default:
			return 0, fmt.Errorf("unknown telegraph target %q", n)
		}
	}
	return f, nil
}

// ParseVital resolves a vital by its YAML name.
func ParseVital(s string) (Vital, error) {
	v, ok := vitalNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown vital %q", s)
	}
	return v, nil
}
