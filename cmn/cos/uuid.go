package cos

import (
	"sync/atomic"

	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

// InitShortID seeds the package-wide short-id generator. Call once at
// process start; manifest delta filenames are derived from it.
func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenShortID returns a short, filesystem- and object-key-safe identifier,
// used for manifest delta object names ("<seq>-<shortid>.delta").
func GenShortID() string {
	if sid == nil {
		InitShortID(uint64(rtie.Add(1)))
	}
	return sid.MustGenerate()
}
