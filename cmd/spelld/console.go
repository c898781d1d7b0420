package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/l1jgo/spellengine/internal/system"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

// command is one parsed console line:
//
//	cast <caster> <ability> [target]
//	tap <caster> <ability>
//	cancel <caster>
//	interact <caster> <casting_id> ok|fail
//	move <unit> <x> <y>
type command struct {
	line string
	verb string
	args []string
}

var commandArity = map[string][2]int{
	"cast":     {2, 3},
	"tap":      {2, 2},
	"cancel":   {1, 1},
	"interact": {3, 3},
	"move":     {3, 3},
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	c := command{line: line, verb: strings.ToLower(fields[0]), args: fields[1:]}
	arity, ok := commandArity[c.verb]
	if !ok {
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	if len(c.args) < arity[0] || len(c.args) > arity[1] {
		return command{}, fmt.Errorf("%s: want %d..%d arguments, got %d", c.verb, arity[0], arity[1], len(c.args))
	}
	return c, nil
}

// readCommands forwards parsed stdin lines until r is exhausted.
func readCommands(r io.Reader, out chan<- command, log *zap.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseCommand(line)
		if err != nil {
			log.Warn("bad command", zap.String("line", line), zap.Error(err))
			continue
		}
		out <- c
	}
}

// apply turns the command into a queued request, or moves a unit directly.
// Runs on the tick goroutine.
func (c command) apply(ws *world.State, spells *system.SpellSystem) error {
	unit, ok := ws.FindByName(c.args[0])
	if !ok {
		return fmt.Errorf("no unit named %q", c.args[0])
	}
	switch c.verb {
	case "cast":
		id, err := parseID(c.args[1])
		if err != nil {
			return err
		}
		req := system.Request{Kind: system.RequestCast, CasterID: unit.ID(), AbilityID: id}
		if len(c.args) == 3 {
			target, ok := ws.FindByName(c.args[2])
			if !ok {
				return fmt.Errorf("no unit named %q", c.args[2])
			}
			req.TargetID = target.ID()
		}
		spells.Queue(req)
	case "tap":
		id, err := parseID(c.args[1])
		if err != nil {
			return err
		}
		spells.Queue(system.Request{Kind: system.RequestTap, CasterID: unit.ID(), AbilityID: id})
	case "cancel":
		spells.Queue(system.Request{Kind: system.RequestCancel, CasterID: unit.ID()})
	case "interact":
		id, err := parseID(c.args[1])
		if err != nil {
			return err
		}
		var ok bool
		switch c.args[2] {
		case "ok":
			ok = true
		case "fail":
		default:
			return fmt.Errorf("interact: want ok or fail, got %q", c.args[2])
		}
		spells.Queue(system.Request{Kind: system.RequestInteraction, CasterID: unit.ID(), CastingID: id, Success: ok})
	case "move":
		x, err := strconv.ParseFloat(c.args[1], 64)
		if err != nil {
			return fmt.Errorf("move: bad x: %w", err)
		}
		y, err := strconv.ParseFloat(c.args[2], 64)
		if err != nil {
			return fmt.Errorf("move: bad y: %w", err)
		}
		p := unit.Position()
		return ws.MoveUnit(unit.ID(), x, y, p.Z, unit.Yaw())
	}
	return nil
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad id %q: %w", s, err)
	}
	return uint32(v), nil
}
