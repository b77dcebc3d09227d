package coordinator

import (
	"strings"

	"github.com/google/uuid"
)

func newCorrelationID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
