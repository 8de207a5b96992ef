// Package codec serializes captured method calls as YAML records.
//
// A record is a sequence of three or four elements:
//
//	- !ruby/class Report
//	- :generate
//	- - 2024
//	- :format: csv
//
// The first element names the target, the second the method, the third the
// positional arguments and the optional fourth the keyword arguments. Only
// kinds on the configured AllowList are written or reconstructed; any other
// tag fails with core.ErrDisallowedType. Shared maps and slices are written
// once with an anchor and referenced by alias afterwards.
package codec

var (
	defaultEncoder = NewEncoder(DefaultAllowList())
	defaultDecoder = NewDecoder(DefaultAllowList())
)

// Encode serializes rec using the default allow-list.
func Encode(rec Record) (string, error) {
	return defaultEncoder.Encode(rec)
}

// Decode parses payload using the default allow-list.
func Decode(payload string) (Record, error) {
	return defaultDecoder.Decode(payload)
}

// DecodeValue parses a single YAML value using the default allow-list.
func DecodeValue(src string) (any, error) {
	return defaultDecoder.DecodeValue(src)
}
