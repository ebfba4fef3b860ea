// Package wireformat defines the JSON structures that cross the guest
// boundary inside tagged byte buffers. Field names and shapes are part of
// the guest-visible contract: byte strings inside batch operations and scan
// entries travel as JSON arrays of numbers, while request structs carry
// values base64-encoded.
package wireformat
