package checkout

import "fmt"

type StepKind string

const (
	StepDetails      StepKind = "details"
	StepPayment      StepKind = "payment"
	StepConfirmation StepKind = "confirmation"
	StepAuthorize    StepKind = "authorize"
	StepConfirm      StepKind = "confirm"
)

type StepInfo struct {
	Kind     StepKind `json:"kind"`
	Template string   `json:"template"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
}

var stepInfo = map[StepKind]StepInfo{
	StepDetails:      {Kind: StepDetails, Template: "billing_shipping", URL: "details", Title: "Details"},
	StepPayment:      {Kind: StepPayment, Template: "payment", URL: "payment", Title: "Payment"},
	StepConfirmation: {Kind: StepConfirmation, Template: "confirmation", URL: "confirmation", Title: "Confirmation"},
	StepAuthorize:    {Kind: StepAuthorize, Template: "billing_shipping", URL: "details", Title: "Details"},
	StepConfirm:      {Kind: StepConfirm, Template: "confirmation", URL: "confirmation", Title: "Confirmation"},
}

// Steps is the ordered list of steps a flow walks through. Step numbers are
// 1-based.
type Steps struct {
	list []StepInfo
}

// NewSteps assembles the standard checkout. Details is always first.
func NewSteps(paymentStep, confirmation bool) Steps {
	s := Steps{list: []StepInfo{stepInfo[StepDetails]}}
	if paymentStep {
		s.list = append(s.list, stepInfo[StepPayment])
	}
	if confirmation {
		s.list = append(s.list, stepInfo[StepConfirmation])
	}
	return s
}

// ExpressSteps is the two-step flow around the provider redirect.
func ExpressSteps() Steps {
	return Steps{list: []StepInfo{stepInfo[StepAuthorize], stepInfo[StepConfirm]}}
}

const (
	ExpressAuthorize = 1
	ExpressConfirm   = 2
)

func (s Steps) All() []StepInfo { return s.list }

func (s Steps) First() int { return 1 }

func (s Steps) Last() int { return len(s.list) }

// Number returns the position of kind, or 0 when the flow doesn't have it.
func (s Steps) Number(kind StepKind) int {
	for i, st := range s.list {
		if st.Kind == kind {
			return i + 1
		}
	}
	return 0
}

func (s Steps) HasConfirmation() bool { return s.Number(StepConfirmation) != 0 }

// CollectsCard reports whether card fields are part of the form on step.
func (s Steps) CollectsCard(step int) bool {
	p := s.Number(StepPayment)
	return p != 0 && step >= p
}

func (s Steps) Clamp(step int) int {
	if step < s.First() {
		return s.First()
	}
	if step > s.Last() {
		return s.Last()
	}
	return step
}

func (s Steps) Info(step int) StepInfo { return s.list[s.Clamp(step)-1] }

type event int

const (
	eventBack event = iota
	eventInvalid
	eventAdvance
	eventStay
	eventPaymentFailed
	eventCompleted
)

func (e event) String() string {
	switch e {
	case eventBack:
		return "back"
	case eventInvalid:
		return "invalid"
	case eventAdvance:
		return "advance"
	case eventStay:
		return "stay"
	case eventPaymentFailed:
		return "payment_failed"
	case eventCompleted:
		return "completed"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// next is the whole transition table. Completed leaves the step where it is;
// the caller redirects away from the flow.
func (s Steps) next(step int, e event) int {
	switch e {
	case eventBack:
		return s.Clamp(step - 1)
	case eventInvalid, eventStay, eventCompleted:
		return s.Clamp(step)
	case eventAdvance:
		return s.Clamp(step + 1)
	case eventPaymentFailed:
		if s.HasConfirmation() {
			return s.Clamp(step - 1)
		}
		return s.Clamp(step)
	}
	panic(fmt.Sprintf("checkout: unhandled %v", e))
}
