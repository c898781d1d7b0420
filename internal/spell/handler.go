package spell

import (
	"fmt"

	"github.com/l1jgo/spellengine/internal/data"
)

// EffectHandler applies (or removes) one effect application on one target.
type EffectHandler func(c *Instance, target Unit, app *EffectApplication)

type effectHandlers struct {
	apply  EffectHandler
	remove EffectHandler
}

// HandlerTable maps effect types to their handlers. The proxy handler is
// built in because proxies are part of the cast pipeline itself.
type HandlerTable struct {
	handlers map[data.EffectType]effectHandlers
}

func NewHandlerTable() *HandlerTable {
	t := &HandlerTable{handlers: make(map[data.EffectType]effectHandlers, 8)}
	t.Register(data.EffectProxy, applyProxy, nil)
	return t
}

// Register installs the apply and optional remove handler for typ,
// replacing any previous registration.
func (t *HandlerTable) Register(typ data.EffectType, apply, remove EffectHandler) {
	if apply == nil {
		panic(fmt.Sprintf("spell: nil apply handler for %s", typ))
	}
	t.handlers[typ] = effectHandlers{apply: apply, remove: remove}
}

// Apply returns the apply handler for typ.
func (t *HandlerTable) Apply(typ data.EffectType) (EffectHandler, bool) {
	h, ok := t.handlers[typ]
	return h.apply, ok
}

// Remove returns the remove handler for typ, if one was registered.
func (t *HandlerTable) Remove(typ data.EffectType) (EffectHandler, bool) {
	h, ok := t.handlers[typ]
	if !ok || h.remove == nil {
		return nil, false
	}
	return h.remove, true
}

func applyProxy(c *Instance, target Unit, app *EffectApplication) {
	c.addProxy(newProxy(target, app.Effect, c))
}
