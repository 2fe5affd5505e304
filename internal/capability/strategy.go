package capability

import "fmt"

// Strategy is the transport variant picked for an environment.
type Strategy int

const (
	StrategyNative Strategy = iota
	StrategyBinary
	StrategyText
)

func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyBinary:
		return "binary"
	case StrategyText:
		return "text"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyNative, StrategyBinary, StrategyText} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}
