// Package value provides typed JSON values for response evaluation.
//
// Response bodies are decoded once into the sealed Value types and every
// expectation is evaluated against them through Path lookups. Nothing in
// this package returns an error for a missing field: lookups report
// presence with a boolean so evaluation stays total.
//
// Key design constraints:
//   - Numbers keep their decimal literal; comparisons use exact rationals
//   - Strings compare after NFC normalization
//   - Object keys iterate in RFC 8785 order for stable output
package value
