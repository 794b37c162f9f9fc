package core

import (
	"strings"

	"riskagent/utils"
)

// RawArtifacts holds one cycle's source outputs. A nil field is absent.
type RawArtifacts struct {
	Canvas Artifact
	WebGL  Artifact
	Audio  Artifact
	Fonts  Artifact
}

// ReduceDigests hashes every present artifact with SHA-256. Absent artifacts
// stay absent; nothing is hashed in their place.
func ReduceDigests(raw RawArtifacts) FingerprintDigests {
	d := FingerprintDigests{
		Canvas: digest(raw.Canvas),
		WebGL:  digest(raw.WebGL),
		Audio:  digest(raw.Audio),
		Fonts:  digest(raw.Fonts),
	}
	d.FingerprintID = fingerprintID(d)
	return d
}

func digest(a Artifact) *string {
	if a == nil {
		return nil
	}
	in, err := a.digestInput()
	if err != nil {
		return nil
	}
	sum := utils.Sha256Hex(in)
	return &sum
}

// fingerprintID folds the four digests into one 128-bit device key.
func fingerprintID(d FingerprintDigests) string {
	parts := make([]string, 0, 4)
	for _, p := range []*string{d.Canvas, d.WebGL, d.Audio, d.Fonts} {
		if p == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, *p)
	}
	return utils.X64Hash128(strings.Join(parts, "|"), 0)
}
