package domain

type ChainID string
type ChainName string

const (
	// Chain IDs
	ChainIDAnvil       ChainID = "31337"
	ChainIDLiskSepolia ChainID = "4202"

	// Chain Names (Internal Codes)
	ChainNameAnvil       ChainName = "ANVIL_LOCAL"
	ChainNameLiskSepolia ChainName = "LISK_SEPOLIA"
)

// ChainIDToName maps ChainID to its human-readable InternalCode/Name.
var ChainIDToName = map[ChainID]ChainName{
	ChainIDAnvil:       ChainNameAnvil,
	ChainIDLiskSepolia: ChainNameLiskSepolia,
}

// ChainNameToID maps Chain Name to its ID.
var ChainNameToID = map[ChainName]ChainID{
	ChainNameAnvil:       ChainIDAnvil,
	ChainNameLiskSepolia: ChainIDLiskSepolia,
}
