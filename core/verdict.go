package core

import "fmt"

// Verdict is the WildFire verdict label of a sample
type Verdict string

const (
	VerdictBenign   Verdict = "benign"
	VerdictMalware  Verdict = "malware"
	VerdictGrayware Verdict = "grayware"
	VerdictPhishing Verdict = "phishing"

	// VerdictNotFound marks an input with no matching sample
	VerdictNotFound Verdict = "No Sample Found"
	// VerdictUnknown marks a sample whose verdict code could not be mapped
	VerdictUnknown Verdict = "unknown"
)

var verdictCodes = map[int]Verdict{
	0: VerdictBenign,
	1: VerdictMalware,
	2: VerdictGrayware,
	3: VerdictPhishing,
}

// ParseVerdict maps a raw verdict code
func ParseVerdict(code int) (Verdict, error) {
	v, ok := verdictCodes[code]
	if !ok {
		return VerdictUnknown, fmt.Errorf("%w: %d", ErrUnknownVerdict, code)
	}
	return v, nil
}

// Verdicts lists the mapped verdicts in report order
func Verdicts() []Verdict {
	return []Verdict{VerdictMalware, VerdictPhishing, VerdictGrayware, VerdictBenign}
}
