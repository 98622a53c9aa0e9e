// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
)

// journal collects compensating actions for effects that already happened
// so a failing operation can be rolled back.
type journal struct {
	log  log.Logger
	undo []func() error
}

func (j *journal) add(f func() error) {
	j.undo = append(j.undo, f)
}

func (j *journal) revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](); err != nil {
			j.log.Warn("compensation failed", log.Err(err))
		}
	}
	j.undo = nil
}

func kindLabel(err error) string {
	return multibridge.KindOf(err).String()
}
