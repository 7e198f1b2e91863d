package types

// ChainType represents supported blockchain families.
type ChainType string

const (
	// EVM represents Ethereum Virtual Machine based chains (e.g. Ethereum, Base, Linea, etc.)
	EVM ChainType = "EVM"
	// COSMOS represents CosmWasm-enabled Cosmos SDK chains (e.g. Neutron, Juno, etc.)
	COSMOS ChainType = "COSMOS"
	// UNKNOWN represents unknown or unsupported chain type in the system.
	UNKNOWN ChainType = "UNKNOWN"
)

// String converts ChainType to string representation.
func (t ChainType) String() string {
	return string(t)
}

// ParseChainType converts string to ChainType representation.
func ParseChainType(s string) ChainType {
	switch s {
	case EVM.String():
		return EVM
	case COSMOS.String():
		return COSMOS
	default:
		return UNKNOWN
	}
}
