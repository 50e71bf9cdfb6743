package game

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrPlayerDead      = errors.New("player is dead")
	ErrGameOver        = errors.New("game is over")
	ErrGameInProgress  = errors.New("game still in progress")

	// Turn failures. All of them degrade to a silent turn.
	ErrAgentTimeout  = errors.New("agent timed out")
	ErrAgentError    = errors.New("agent failed")
	ErrInvalidAction = errors.New("invalid action")
	ErrLateTurn      = errors.New("late turn")

	ErrConfig = errors.New("invalid config")
)

// ConfigError rejects a roster or config at session start.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

