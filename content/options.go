package content

import (
	"io"

	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/xmltok"
	"github.com/sirupsen/logrus"
)

// EntityResolver resolves an external entity's public/system identifier
// pair to an input source (spec.md §6.2). Returning ok=false means "skip":
// the content parser reports skippedEntity instead of expanding.
type EntityResolver interface {
	Resolve(publicID, systemID string) (r io.ReadCloser, resolvedSystemID string, ok bool)
}

// Options mirrors the recognized feature-flag table of spec.md §6.3. The
// public gonzalez.Options functional-options type (SPEC_FULL.md §2) builds
// one of these and hands it to content.New; content.Options itself stays a
// plain struct since it is this package's internal configuration surface,
// not the library's public API.
type Options struct {
	Namespaces                bool
	NamespacePrefixes          bool
	Validation                 bool
	ExternalGeneralEntities    bool
	ExternalParameterEntities  bool
	ResolveDTDURIs             bool
	StringInterning            bool
	XML11                      bool

	Resolver EntityResolver
	Limits   xmltok.Limits
	Logger   *logrus.Logger
}

// DefaultOptions returns the spec.md §6.3 defaults: namespace resolution,
// DTD URI resolution and string interning on, everything else (namespace-prefixes,
// validation, external entity resolution) off — the XXE-safe posture
// spec.md §6.2 requires.
func DefaultOptions() Options {
	return Options{
		Namespaces:      true,
		ResolveDTDURIs:  true,
		StringInterning: true,
		Limits:          xmltok.DefaultLimits(),
	}
}
