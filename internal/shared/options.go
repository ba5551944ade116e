package shared

// Option is an id/label pair rendered in <select> elements.
type Option struct {
	ID    int64
	Label string
}
