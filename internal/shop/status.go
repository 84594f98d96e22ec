package shop

type Status string

const (
	StatusDraft    Status = "draft"
	StatusComplete Status = "complete"
)

var validNext = map[Status]map[Status]bool{
	StatusDraft:    {StatusComplete: true},
	StatusComplete: {},
}

// CanTransition reports whether an order in status from may move to to.
// A completed order is final.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
