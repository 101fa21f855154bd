package testutil

// Test signing and seal keys for use in tests only.
// Both are 32 bytes of raw key material, the minimum the key parsers accept.
const (
	TestSigningKey = "0123456789abcdef0123456789abcdef"
	TestSealKey    = "fedcba9876543210fedcba9876543210"
)
