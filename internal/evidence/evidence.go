// Package evidence classifies uploaded attachments as acceptable report
// evidence. Only still-image formats are forwarded to moderators; anything
// else is rejected per item, never per batch.
package evidence

import "strings"

// allowedExtensions is the fixed allow-list of filename suffixes accepted
// as evidence, compared case-insensitively.
var allowedExtensions = []string{"png", "jpg", "jpeg", "gif"}

// Item is a single uploaded attachment. Ref is the opaque content handle
// (an upload URL) used to fetch or forward the bytes; the intake session
// that collected an Item owns it exclusively.
type Item struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Ref      string `json:"ref"`
}

// Acceptable reports whether the item's filename ends in one of the
// allow-listed image extensions. The comparison is case-insensitive and
// applied independently per item.
func Acceptable(item Item) bool {
	name := strings.ToLower(item.Filename)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Partition splits a batch into acceptable and rejected items, preserving
// arrival order within each slice. A mixed batch is never rejected
// wholesale; callers decide what to do with each side.
func Partition(batch []Item) (accepted, rejected []Item) {
	for _, item := range batch {
		if Acceptable(item) {
			accepted = append(accepted, item)
		} else {
			rejected = append(rejected, item)
		}
	}
	return accepted, rejected
}
