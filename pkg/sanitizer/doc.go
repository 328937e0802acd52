// Package sanitizer normalizes user-supplied travel and passenger input before
// validation and storage.
//
// All functions are idempotent and never fail; input that cannot be normalized comes
// back empty so the validator rejects it.
//
// Normalization includes:
//   - Location codes: trimmed, uppercased, letters only ("lon " becomes "LON")
//   - Names: whitespace collapsed and trimmed
//   - Emails: trimmed and lowercased
//   - Passport numbers: separators removed, uppercased ("ab 123-456" becomes "AB123456")
//   - Slices: duplicates and empty values dropped after normalization
package sanitizer
