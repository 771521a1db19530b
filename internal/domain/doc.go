// Package domain defines the data model, error taxonomy and contracts shared
// across the wormhole packages. It holds plain types and interfaces only.
package domain
