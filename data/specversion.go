package data

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CheckSpecVersion enforces spec.md §4.3: spec_version is checked only for
// major-version compatibility, e.g. "1.0.19" is compatible with "1.0.0".
func CheckSpecVersion(got, supportedMajor string) error {
	gotMajor := majorOf(got)
	wantMajor := majorOf(supportedMajor)
	if gotMajor == "" || wantMajor == "" {
		return errors.Errorf("malformed spec_version: got %q, want major %q", got, supportedMajor)
	}
	if gotMajor != wantMajor {
		return errors.Errorf("incompatible spec_version: got major %s, support major %s", gotMajor, wantMajor)
	}
	return nil
}

func majorOf(v string) string {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) == 0 {
		return ""
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return ""
	}
	return parts[0]
}
