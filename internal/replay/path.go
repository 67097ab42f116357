package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// ExpandPath formats strftime verbs (%Y, %m, %d, %H, ...) in a record path
// so each run can write its own file. Paths without '%' are returned as is.
func ExpandPath(pattern string, t time.Time) (string, error) {
	if !strings.Contains(pattern, "%") {
		return pattern, nil
	}
	p, err := strftime.Format(pattern, t.UTC())
	if err != nil {
		return "", fmt.Errorf("record path %q: %w", pattern, err)
	}
	return p, nil
}
