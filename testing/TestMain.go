// Package testing puts the process into test mode and points the backend
// origin at an unroutable address so nothing under test reaches a real
// server by accident.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("POSDESK_TEST_MODE", "1")
		if os.Getenv("API_ORIGIN") == "" {
			_ = os.Setenv("API_ORIGIN", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be called from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
