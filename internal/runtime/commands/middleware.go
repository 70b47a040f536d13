package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Logging reports failed commands and slow successes.
func Logging(slow time.Duration) Middleware {
	return func(ctx context.Context, cmd Command, next Handler) (Response, error) {
		start := time.Now()
		resp, err := next.Handle(ctx, cmd)
		took := time.Since(start)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			log.Printf("INFO: command %s cancelled after %s", cmd.Name(), took)
		case err != nil:
			log.Printf("WARN: command %s failed after %s: %v", cmd.Name(), took, err)
		case slow > 0 && took > slow:
			log.Printf("INFO: command %s took %s", cmd.Name(), took)
		}
		return resp, err
	}
}

// Recover turns a handler panic into an error.
func Recover() Middleware {
	return func(ctx context.Context, cmd Command, next Handler) (resp Response, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("ERROR: command %s panicked: %v", cmd.Name(), p)
				resp, err = nil, fmt.Errorf("commands: %s panicked: %v", cmd.Name(), p)
			}
		}()
		return next.Handle(ctx, cmd)
	}
}
