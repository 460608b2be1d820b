package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateCallID returns a new call ID in the form "<unix millis>:<random suffix>".
//
// IDs are unique with overwhelming probability but not guaranteed to be. The client refuses to
// register an ID that is still outstanding and draws another one.
func GenerateCallID() string {
	var sb strings.Builder
	sb.Grow(32)
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	sb.WriteByte(':')
	id := uuid.New()
	sb.WriteString(strings.ReplaceAll(id.String()[:18], "-", ""))

	return sb.String()
}
