package gonzalez

import (
	"github.com/cpkb-bluezoo/gonzalez-sub008/content"
	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/xmltok"
	"github.com/sirupsen/logrus"
)

// Options holds the recognized parser feature flags. The zero value is
// not useful; NewParser starts from the defaults (namespaces on, external
// entity resolution off) and applies functional options on top.
type Options struct {
	inner content.Options
}

// Option adjusts one feature flag on a Parser.
type Option func(*Options)

// WithNamespaces toggles namespace resolution and reporting (default on).
func WithNamespaces(v bool) Option {
	return func(o *Options) { o.inner.Namespaces = v }
}

// WithNamespacePrefixes also reports xmlns* attributes as ordinary
// attributes (default off).
func WithNamespacePrefixes(v bool) Option {
	return func(o *Options) { o.inner.NamespacePrefixes = v }
}

// WithValidation enables DTD validation on parsers that support it; this
// parser only surfaces the flag.
func WithValidation(v bool) Option {
	return func(o *Options) { o.inner.Validation = v }
}

// WithExternalGeneralEntities allows resolving external general entities
// (default off, the XXE-safe posture).
func WithExternalGeneralEntities(v bool) Option {
	return func(o *Options) { o.inner.ExternalGeneralEntities = v }
}

// WithExternalParameterEntities allows resolving external parameter
// entities (default off).
func WithExternalParameterEntities(v bool) Option {
	return func(o *Options) { o.inner.ExternalParameterEntities = v }
}

// WithResolveDTDURIs controls resolving system identifiers in
// declarations against the document base on parsers that support it;
// this parser stores the identifiers as declared and only surfaces the
// flag.
func WithResolveDTDURIs(v bool) Option {
	return func(o *Options) { o.inner.ResolveDTDURIs = v }
}

// WithStringInterning interns element and attribute names (default on).
func WithStringInterning(v bool) Option {
	return func(o *Options) { o.inner.StringInterning = v }
}

// WithXML11 accepts the wider XML 1.1 character classes.
func WithXML11(v bool) Option {
	return func(o *Options) { o.inner.XML11 = v }
}

// WithEntityResolver installs a resolver consulted for external entities
// when their resolution is enabled.
func WithEntityResolver(r content.EntityResolver) Option {
	return func(o *Options) { o.inner.Resolver = r }
}

// WithLimits overrides the entity-expansion bounds.
func WithLimits(l xmltok.Limits) Option {
	return func(o *Options) { o.inner.Limits = l }
}

// WithLogger sets the logger that receives the error of a failed parse.
func WithLogger(log *logrus.Logger) Option {
	return func(o *Options) { o.inner.Logger = log }
}

func buildOptions(opts []Option) Options {
	o := Options{inner: content.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
