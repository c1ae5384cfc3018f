package pipeline

import (
	"fmt"
	"os"
	"strconv"

	"github.com/starford/dealsync/internal/apperr"
)

// AcquireLock takes the advisory run lock so no two runs mutate the same
// ledger and tiers concurrently. The returned release function removes the
// lock file. A held lock surfaces as apperr.ErrLockHeld.
func AcquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("pipeline: %s: %w", path, apperr.ErrLockHeld)
		}
		return nil, fmt.Errorf("pipeline: create lock %s: %w", path, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("pipeline: write lock %s: %w", path, err)
	}
	return func() { _ = os.Remove(path) }, nil
}
