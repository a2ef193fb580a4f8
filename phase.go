package trafficlight

import "fmt"

type Phase string

const (
	PhaseRed   Phase = "red"
	PhaseGreen Phase = "green"
)

// Next returns the phase the light switches to after p.
func (p Phase) Next() Phase {
	if p == PhaseRed {
		return PhaseGreen
	}
	return PhaseRed
}

func (p Phase) String() string {
	return string(p)
}

func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseRed, PhaseGreen:
		return Phase(s), nil
	default:
		return "", fmt.Errorf("invalid phase %q: must be red or green", s)
	}
}
