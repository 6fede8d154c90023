// Package testing forces test mode before any package under test starts
// runtime side effects. Import it for side effects from *_test.go files.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("TROOPLEDGER_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}
