package model

// WhitelistArtifact is the file consumed by downstream access-control checks.
type WhitelistArtifact struct {
	Root   string           `json:"root"`
	Proofs []WhitelistProof `json:"proofs"`
}

// WhitelistProof is the membership proof for one account.
type WhitelistProof struct {
	Account string   `json:"account"`
	Leaf    string   `json:"leaf,omitempty"`
	Proof   []string `json:"proof"`
}
