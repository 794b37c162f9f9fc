package core

import "time"

type PayloadParts struct {
	Environment RawSignalSet
	Digests     FingerprintDigests
	Heuristics  HeuristicFlags
	Iframes     IframeScan
	Interaction InteractionSummary
	Origin      OriginSignals

	// Identifiers are optional. nil leaves the field out of the payload.
	SessionID *string
	UserID    *string

	CapturedAt time.Time
}

// AssemblePayload composes the final payload. It has no side effects.
func AssemblePayload(p PayloadParts) RiskPayload {
	out := RiskPayload{
		Timestamp:     p.CapturedAt.UnixMilli(),
		Stage1:        p.Environment,
		Stage2:        p.Digests,
		Stage3:        p.Heuristics,
		IframeSignals: p.Iframes,
		Interaction:   p.Interaction,
		Origin:        p.Origin,
	}
	if p.SessionID != nil {
		id := *p.SessionID
		out.SessionID = &id
	}
	if p.UserID != nil {
		id := *p.UserID
		out.UserID = &id
	}
	return out
}
