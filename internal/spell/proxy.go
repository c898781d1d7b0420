package spell

import (
	"time"

	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// Proxy is a follow-up cast requested by an effect. It is evaluated and
// dispatched after the effect pass that created it, through the parent's
// scheduler, so it never runs inside the pipeline that spawned it.
type Proxy struct {
	Recipient Unit
	Effect    *data.EffectInfo
	Parent    *Instance
	canCast   bool
}

func newProxy(recipient Unit, e *data.EffectInfo, parent *Instance) *Proxy {
	return &Proxy{Recipient: recipient, Effect: e, Parent: parent}
}

// Evaluate decides eligibility once. Non-player recipients and proxies
// without a check prerequisite always pass.
func (p *Proxy) Evaluate(prereqs Prerequisites) {
	if !p.Recipient.IsPlayer() || p.Effect.DataBits[6] == 0 {
		p.canCast = true
		return
	}
	p.canCast = prereqs.Meets(p.Recipient, p.Effect.DataBits[6])
}

func (p *Proxy) CanCast() bool { return p.canCast }

func (p *Proxy) parameters() Parameters {
	parent := p.Parent
	root := parent.params.Root
	if root == nil {
		root = parent.info
	}
	return Parameters{
		Parent:          parent.info,
		Root:            root,
		PrimaryTargetID: p.Recipient.ID(),
		UserInitiated:   parent.params.UserInitiated,
		IsProxy:         true,
	}
}

func (p *Proxy) castAbility(id uint32) {
	p.Parent.host.castProxy(p.Parent.caster, id, p.parameters())
}

// schedule dispatches the proxy as if it had been handled at virtual time
// at. With replay set, anything due at or before s.Now() has already run and
// is skipped, which lets a restored cast rebuild its proxy timeline.
func (p *Proxy) schedule(s *Scheduler, at time.Duration, replay bool) {
	if !p.canCast {
		return
	}
	start := at + p.Effect.DelayTime
	if start > s.Now() {
		s.EnqueueAt(start, func() { p.fire(s, start, false) })
		return
	}
	p.fire(s, start, replay)
}

// fire runs the proxy body at virtual time t0.
func (p *Proxy) fire(s *Scheduler, t0 time.Duration, replay bool) {
	e := p.Effect
	if e.TickTime <= 0 {
		if !replay {
			p.castAbility(e.DataBits[0])
		}
		return
	}
	tickID := e.DataBits[1]
	if e.DurationTime > 0 {
		n := int64(e.DurationTime / e.TickTime)
		for i := int64(1); i <= n; i++ {
			due := t0 + e.TickTime*time.Duration(i)
			if replay && due <= s.Now() {
				continue
			}
			s.EnqueueAt(due, func() { p.castAbility(tickID) })
		}
		return
	}
	first := t0 + e.TickTime
	if replay && first <= s.Now() {
		k := (s.Now()-first)/e.TickTime + 1
		first += k * e.TickTime
	}
	s.EnqueueRepeatingAt(first, e.TickTime, func() { p.castAbility(tickID) })
}

type proxyRecord struct {
	proxy *Proxy
	at    time.Duration
}

func (c *Instance) addProxy(p *Proxy) {
	c.proxies = append(c.proxies, p)
}

// handleProxies evaluates every pending proxy, then dispatches the eligible
// ones and clears the list.
func (c *Instance) handleProxies() {
	if len(c.proxies) == 0 {
		return
	}
	for _, p := range c.proxies {
		p.Evaluate(c.deps.Prereqs)
	}
	now := c.events.Now()
	for _, p := range c.proxies {
		if !p.CanCast() {
			c.log.Debug("proxy not eligible",
				zap.Uint32("effect_id", p.Effect.ID),
				zap.Stringer("recipient", p.Recipient.ID()))
			continue
		}
		p.schedule(c.events, now, false)
		c.dispatched = append(c.dispatched, proxyRecord{proxy: p, at: now})
	}
	c.proxies = c.proxies[:0]
}
