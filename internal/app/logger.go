package app

import (
	"os"

	"github.com/Orurh/courier-dispatch/internal/logx"
)

// NewLogger returns a JSON logger on stdout.
func NewLogger(level string) logx.Logger {
	return logx.NewJSON(os.Stdout, level)
}
