package mail

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func newID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return strings.ToLower(id.String())
}
