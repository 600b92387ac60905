// Package guard flips the runtime into test mode when imported, keeping test
// binaries from starting servers or workers.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SHOPLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("SHOPLEDGER_TEST_MODE", "1")
		}
	})
}
