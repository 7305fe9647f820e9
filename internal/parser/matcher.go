package parser

// Matcher is one named extraction strategy.
type Matcher[T any] struct {
	Name  string
	Match func(text string) (T, bool)
}

// FirstMatch runs matchers in order and returns the first hit along with
// the name of the matcher that produced it.
func FirstMatch[T any](text string, matchers ...Matcher[T]) (T, string, bool) {
	for _, m := range matchers {
		if v, ok := m.Match(text); ok {
			return v, m.Name, true
		}
	}
	var zero T
	return zero, "", false
}
