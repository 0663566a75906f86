package vm

// ConsensusVersion identifies a ledger consensus rule set as of a given
// block height. The prover needs only to know which VarunaVersion a
// height maps to; it never interprets the other consensus rules a height
// implies.
type ConsensusVersion int

const (
	ConsensusV1 ConsensusVersion = iota + 1
	ConsensusV2
	ConsensusV3
	ConsensusV4
	ConsensusV5
	ConsensusV6
	ConsensusV7
)

// consensusBoundaries maps the height at which each consensus version
// begins. A height below the first boundary is ConsensusV1. These are
// placeholder boundaries for a reference network — the mapping's caller
// never requires specific block heights to carry real chain meaning.
var consensusBoundaries = []struct {
	height  uint64
	version ConsensusVersion
}{
	{0, ConsensusV1},
	{1_000_000, ConsensusV2},
	{2_000_000, ConsensusV3},
	{3_000_000, ConsensusV4},
	{4_000_000, ConsensusV5},
	{5_000_000, ConsensusV6},
	{6_000_000, ConsensusV7},
}

// ConsensusVersionForHeight returns the consensus version active at the
// given block height.
func ConsensusVersionForHeight(height uint64) ConsensusVersion {
	version := ConsensusV1
	for _, boundary := range consensusBoundaries {
		if height >= boundary.height {
			version = boundary.version
		}
	}
	return version
}

// VarunaVersion selects which proving system parameters a Trace must be
// proven under. This is the one piece of consensus information that
// actually changes how proving behaves, so it is the only thing derived
// from ConsensusVersion and carried any further.
type VarunaVersion int

const (
	VarunaV1 VarunaVersion = iota + 1
	VarunaV2
)

// SelectVarunaVersion maps a consensus version to its Varuna proving
// parameters. Versions V1 through V3 use VarunaV1; everything from V4
// onward uses VarunaV2. This rule is fixed by the network's consensus
// history and is never configurable.
func SelectVarunaVersion(cv ConsensusVersion) VarunaVersion {
	switch cv {
	case ConsensusV1, ConsensusV2, ConsensusV3:
		return VarunaV1
	default:
		return VarunaV2
	}
}

func (v VarunaVersion) String() string {
	switch v {
	case VarunaV1:
		return "varuna-v1"
	case VarunaV2:
		return "varuna-v2"
	default:
		return "varuna-unknown"
	}
}
