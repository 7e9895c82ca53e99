package domain

// Watermark is a position in one user's change stream.
// Zero means "from the beginning". The wire form is opaque; see store.EncodeWatermark.
type Watermark uint64

// IsZero reports whether w is the starting position.
func (w Watermark) IsZero() bool { return w == 0 }

// Max returns the later of two watermarks.
func (w Watermark) Max(o Watermark) Watermark {
	if o > w {
		return o
	}
	return w
}
