package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTemplateID generates a template id of the form
// tmpl_<unix-ms>_<random>. The timestamp keeps ids roughly sortable by
// creation time; the random suffix breaks same-millisecond collisions.
func NewTemplateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("tmpl_%d_%s", now.UnixMilli(), suffix)
}

// NewExecutionID generates an id for an execution record.
func NewExecutionID() string {
	return "exec_" + uuid.NewString()
}
