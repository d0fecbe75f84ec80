// Package mediaitem implements the polymorphic capability set over the
// three stored variants — Video, Image, Document — dispatched on kind the
// way internal/media dispatches on FileType. Each variant
// implements validation, metadata extraction, preview generation, and
// side-effect-free HTML rendering.
package mediaitem
