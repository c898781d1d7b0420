package spell

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a cast.
type Status uint8

const (
	StatusInitiating Status = iota
	StatusCasting
	StatusExecuting
	StatusWaiting
	StatusFinishing
	StatusFinished
	StatusFailed
)

var statusNames = [...]string{"initiating", "casting", "executing", "waiting", "finishing", "finished", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusFailed }

// CastResult is the typed outcome reported to the caster.
type CastResult uint8

const (
	ResultOk CastResult = iota
	ResultPrereqCasterCast
	ResultCasterCrowdControlled
	ResultAlreadyCasting
	ResultCooldown
	ResultGlobalCooldown
	ResultNoCharges
	ResultNotEnoughResource
	ResultCasterMovement
	ResultCancelled
	ResultInterrupted
	ResultClientInteractionFail
	ResultUnknownAbility
)

var resultNames = [...]string{
	"ok",
	"prereq_caster_cast",
	"caster_crowd_controlled",
	"already_casting",
	"cooldown",
	"global_cooldown",
	"no_charges",
	"not_enough_resource",
	"caster_movement",
	"cancelled",
	"interrupted",
	"client_side_interaction_fail",
	"unknown_ability",
}

func (r CastResult) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// CastError is returned by Cast when validation rejects a cast.
type CastError struct {
	AbilityID uint32
	Result    CastResult
}

func (e *CastError) Error() string {
	return fmt.Sprintf("ability %d: cast rejected: %s", e.AbilityID, e.Result)
}

// ResultOf extracts the CastResult carried by err, or ResultOk when err
// does not wrap a CastError.
func ResultOf(err error) CastResult {
	var ce *CastError
	if errors.As(err, &ce) {
		return ce.Result
	}
	return ResultOk
}

var (
	// ErrInvalidState marks a call the cast's current status does not allow.
	ErrInvalidState = errors.New("spell: invalid cast state")
	// ErrMissingStage marks a threshold release with no stage data to cast.
	ErrMissingStage = errors.New("spell: missing threshold stage")
	// ErrUnknownAbility marks a lookup miss in the ability table.
	ErrUnknownAbility = errors.New("spell: unknown ability")
	// ErrHandlerFault marks an effect handler that panicked.
	ErrHandlerFault = errors.New("spell: effect handler fault")
)
