// Package logger wraps zombiezen.com/go/log so the rest of the module logs
// through one context-threaded sink instead of the teacher's bare
// fmt.Printf gated on a package-level debug flag.
package logger

import (
	"context"

	"zombiezen.com/go/log"
)

var Enabled = true

func Debugf(ctx context.Context, format string, a ...any) {
	if !Enabled {
		return
	}
	log.Debugf(ctx, format, a...)
}

func Infof(ctx context.Context, format string, a ...any) {
	if !Enabled {
		return
	}
	log.Infof(ctx, format, a...)
}

func Warnf(ctx context.Context, format string, a ...any) {
	log.Warnf(ctx, format, a...)
}

func Errorf(ctx context.Context, format string, a ...any) {
	log.Errorf(ctx, format, a...)
}
