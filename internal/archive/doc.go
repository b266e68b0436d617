// Package archive packs ordered page images into a single deliverable file.
//
// Packers never reorder their input: entry i of the output is page i of the
// slice they receive. Every packer writes through a temporary file in the
// destination directory and renames it into place, so callers observe either a
// complete artifact or nothing.
package archive
