package session

import (
	"github.com/pkg/errors"
)

var (
	ErrSessionActive = errors.New("session already begun")
	ErrPrefixEmpty   = errors.New("session prefix is empty")
)
