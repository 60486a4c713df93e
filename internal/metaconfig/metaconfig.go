// Package metaconfig maps microscope types to the filename conventions of
// their vendor software. The regular expressions decide whether an uploaded
// file is a raw image or a metadata file; anything matching neither is
// rejected during upload registration.
package metaconfig

import (
	"fmt"
	"regexp"

	"github.com/tissuemaps/tmserver/internal/model"
)

// Regex holds the filename classifiers for one microscope type.
type Regex struct {
	Image    *regexp.Regexp
	Metadata *regexp.Regexp
}

var registry = map[model.MicroscopeType]Regex{
	model.MicroscopeVisiview: {
		Image:    regexp.MustCompile(`(?i)\.(tiff?|stk)$`),
		Metadata: regexp.MustCompile(`(?i)\.nd$`),
	},
	model.MicroscopeCellvoyager: {
		Image:    regexp.MustCompile(`(?i)\.(tiff?|png)$`),
		Metadata: regexp.MustCompile(`(?i)\.(mlf|mrf)$`),
	},
	model.MicroscopeGeneric: {
		Image:    regexp.MustCompile(`(?i)\.(tiff?|png|jpe?g)$`),
		Metadata: regexp.MustCompile(`(?i)\.(xml|json|ya?ml)$`),
	},
}

// ForType returns the filename classifiers for the given microscope type.
func ForType(t model.MicroscopeType) (Regex, error) {
	r, ok := registry[t]
	if !ok {
		return Regex{}, fmt.Errorf("unsupported microscope type %q", t)
	}
	return r, nil
}

// Types lists the supported microscope types.
func Types() []model.MicroscopeType {
	return []model.MicroscopeType{
		model.MicroscopeVisiview,
		model.MicroscopeCellvoyager,
		model.MicroscopeGeneric,
	}
}

// IsKnownType reports whether t is a supported microscope type.
func IsKnownType(t model.MicroscopeType) bool {
	_, ok := registry[t]
	return ok
}
