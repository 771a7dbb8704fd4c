package constants

// PartialSuffix marks an in-flight download in the intake directory.
// Partial files are also dot-prefixed so intake enumeration never sees them.
const PartialSuffix = ".part"
