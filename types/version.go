package types

// Version is the canonical project version.
// The CLI, the wire protocol and the completion event schema share this
// version (lockstep versioning).
const Version = "0.3.0"

// ContractVersion is the version stamped on published completion events.
const ContractVersion = Version
