package clip

import "time"

const DefaultBucketWidth = 15 * time.Minute

// BucketAt returns the index of the fixed-width wall-clock window containing t.
// The same station maps to the same clip for the whole window.
func BucketAt(t time.Time, width time.Duration) int64 {
	if width < time.Second {
		width = DefaultBucketWidth
	}
	return t.Unix() / int64(width/time.Second)
}
