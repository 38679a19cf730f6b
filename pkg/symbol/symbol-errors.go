package symbol

import (
	"github.com/pkg/errors"
)

var (
	ErrSymbolNotFound = errors.New("symbol not found by any strategy")
	ErrLibraryClosed  = errors.New("library handle is closed")
	ErrQueryNotFound  = errors.New("extension-query function not found")
)
