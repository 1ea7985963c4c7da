package domain

func canTransition[S comparable](table map[S][]S, from, to S) bool {
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
