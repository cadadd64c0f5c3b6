package connection

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

var safeRe = regexp.MustCompile("^[^']*$")

// escape quotes in as a single shell word. Strings containing a single quote
// are shipped base64 encoded and decoded on the target.
func escape(in string) string {
	if safeRe.MatchString(in) {
		return fmt.Sprintf("'%s'", in)
	}

	b64 := base64.StdEncoding.EncodeToString([]byte(in))
	return fmt.Sprintf("\"$(echo '%s' | base64 -d)\"", b64)
}
