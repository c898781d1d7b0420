package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for ability formulas and
// prerequisite checks.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// core first: shared helpers the other directories call into
	for _, sub := range []string{"core", "effect", "prereq"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HasFunction reports whether a global Lua function is defined.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// --- Effect Bridge ---

// EffectContext holds pre-packed data for one effect application.
type EffectContext struct {
	AbilityID  uint32
	EffectID   uint32
	EffectType string
	Base       float64 // data bit 0
	Scaling    float64 // data bit 1, percent of caster max health
	Periodic   bool
	Roll       float64 // uniform [0,1) supplied by the engine's rng

	CasterIsPlayer  bool
	CasterHealth    float64
	CasterMaxHealth float64
	CasterFocus     float64

	TargetIsPlayer  bool
	TargetHealth    float64
	TargetMaxHealth float64
	Distance        float64
}

// EffectResult is returned by the Lua effect function.
type EffectResult struct {
	Amount float64
	Crit   bool
}

// CalcEffect calls the Lua calc_effect function. Without a script the base
// value is used as is.
func (e *Engine) CalcEffect(ctx EffectContext) EffectResult {
	fallback := EffectResult{Amount: ctx.Base}
	fn := e.vm.GetGlobal("calc_effect")
	if fn == lua.LNil {
		return fallback
	}

	t := e.vm.NewTable()

	eff := e.vm.NewTable()
	eff.RawSetString("ability_id", lua.LNumber(ctx.AbilityID))
	eff.RawSetString("id", lua.LNumber(ctx.EffectID))
	eff.RawSetString("type", lua.LString(ctx.EffectType))
	eff.RawSetString("base", lua.LNumber(ctx.Base))
	eff.RawSetString("scaling", lua.LNumber(ctx.Scaling))
	eff.RawSetString("periodic", lua.LBool(ctx.Periodic))
	t.RawSetString("effect", eff)

	src := e.vm.NewTable()
	src.RawSetString("is_player", lua.LBool(ctx.CasterIsPlayer))
	src.RawSetString("hp", lua.LNumber(ctx.CasterHealth))
	src.RawSetString("max_hp", lua.LNumber(ctx.CasterMaxHealth))
	src.RawSetString("focus", lua.LNumber(ctx.CasterFocus))
	t.RawSetString("caster", src)

	tgt := e.vm.NewTable()
	tgt.RawSetString("is_player", lua.LBool(ctx.TargetIsPlayer))
	tgt.RawSetString("hp", lua.LNumber(ctx.TargetHealth))
	tgt.RawSetString("max_hp", lua.LNumber(ctx.TargetMaxHealth))
	tgt.RawSetString("distance", lua.LNumber(ctx.Distance))
	t.RawSetString("target", tgt)

	t.RawSetString("roll", lua.LNumber(ctx.Roll))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua calc_effect error", zap.Error(err), zap.Uint32("effect_id", ctx.EffectID))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua calc_effect returned non-table", zap.Uint32("effect_id", ctx.EffectID))
		return fallback
	}

	amount := lNum(rt, "amount")
	if amount < 0 {
		amount = 0
	}
	return EffectResult{
		Amount: amount,
		Crit:   rt.RawGetString("crit") == lua.LTrue,
	}
}

// --- Buff Bridge ---

// BuffEffect holds what a buff does while it is applied.
type BuffEffect struct {
	CCMask uint32
	Shield float64
}

// GetBuffEffect calls Lua get_buff_effect(effect_id, base).
// Returns nil if no definition exists (plain marker buff).
func (e *Engine) GetBuffEffect(effectID uint32, base float64) *BuffEffect {
	fn := e.vm.GetGlobal("get_buff_effect")
	if fn == lua.LNil {
		return nil
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(effectID), lua.LNumber(base)); err != nil {
		e.log.Error("lua get_buff_effect error", zap.Error(err), zap.Uint32("effect_id", effectID))
		return nil
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}
	return &BuffEffect{
		CCMask: uint32(lInt(rt, "cc")),
		Shield: lNum(rt, "shield"),
	}
}

// --- Prerequisite Bridge ---

// PrereqContext describes the unit a prerequisite is evaluated against.
type PrereqContext struct {
	PrereqID  uint32
	IsPlayer  bool
	Health    float64
	MaxHealth float64
	CC        uint32
	Buffs     []uint32 // effect ids of active buffs
	Vitals    map[string]float64
}

// CheckPrereq calls Lua check_prereq(id, unit). With no script every
// prerequisite passes; a failing script denies.
func (e *Engine) CheckPrereq(ctx PrereqContext) bool {
	fn := e.vm.GetGlobal("check_prereq")
	if fn == lua.LNil {
		return true
	}

	u := e.vm.NewTable()
	u.RawSetString("is_player", lua.LBool(ctx.IsPlayer))
	u.RawSetString("hp", lua.LNumber(ctx.Health))
	u.RawSetString("max_hp", lua.LNumber(ctx.MaxHealth))
	u.RawSetString("cc", lua.LNumber(ctx.CC))
	buffs := e.vm.NewTable()
	for _, id := range ctx.Buffs {
		buffs.RawSetInt(int(id), lua.LTrue)
	}
	u.RawSetString("buffs", buffs)
	vitals := e.vm.NewTable()
	for k, v := range ctx.Vitals {
		vitals.RawSetString(k, lua.LNumber(v))
	}
	u.RawSetString("vitals", vitals)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(ctx.PrereqID), u); err != nil {
		e.log.Error("lua check_prereq error", zap.Error(err), zap.Uint32("prereq_id", ctx.PrereqID))
		return false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(result)
}

// --- Lua helpers ---

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lNum reads a float field from a Lua table.
func lNum(t *lua.LTable, key string) float64 {
	return float64(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
