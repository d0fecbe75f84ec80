// Package media provides low-level image decoding helpers: dimension
// probing without a full decode, libvips-backed decode-time shrinking for
// large images, and an imaging/stdlib fallback when vips isn't available.
// internal/mediaitem builds image thumbnails and variants on top of it.
package media
