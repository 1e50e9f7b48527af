package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

var (
	unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	plainNameRe  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	plainCodeRe  = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
)

// VariableIdentity uniquely identifies a physical quantity across chunks.
type VariableIdentity struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (v VariableIdentity) String() string {
	return fmt.Sprintf("%s (%s)", v.Name, v.Code)
}

// Key is the filesystem- and message-key-safe form "<name>_<code>". It is
// unique per identity: when the plain form could not be split back into name
// and code (unsafe characters, or an underscore in the code) a "~" and a short
// hash of the raw identity are appended. Plain keys never contain "~".
func (v VariableIdentity) Key() string {
	key := unsafeNameRe.ReplaceAllString(v.Name, "_") + "_" + unsafeNameRe.ReplaceAllString(v.Code, "_")
	if plainNameRe.MatchString(v.Name) && plainCodeRe.MatchString(v.Code) {
		return key
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s%s", len(v.Name), v.Name, v.Code))
	return key + "~" + hex.EncodeToString(sum[:6])
}

// Valid reports whether both halves of the identity are set.
func (v VariableIdentity) Valid() bool {
	return v.Name != "" && v.Code != ""
}

// Chunk is the ordered list of source files for one acquisition stream.
type Chunk struct {
	Name  string
	Files []string
}
