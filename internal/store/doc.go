// Package store writes received files to disk.
//
// Writes go through a temp file in the target directory followed by a
// rename, so a reader never observes a partial file. Peer-supplied names
// are reduced to a single path element before use.
package store
