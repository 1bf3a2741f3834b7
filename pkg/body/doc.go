// Package body normalizes HTTP request bodies for matching and diagnostics.
//
// A raw body plus its Content-Type decodes into a Value of one kind:
//
//   - KindJSON: application/json, any +json media type, or an untyped body
//     that parses as JSON
//   - KindFormData: multipart/form-data, string fields and binary file parts
//   - KindURLEncoded: application/x-www-form-urlencoded
//   - KindText: text/* media types and untyped UTF-8 bodies
//   - KindBlob: everything else, bytes plus media type
//   - KindNone: absent or empty body
//
// Decoding never fails hard. A body that does not decode under its declared
// content type degrades to a blob and Decode also returns a *DecodeError the
// caller is expected to log as a warning.
//
// Equal compares an expected Value against a received one: JSON by deep
// structural equality, form data and URL-encoded params by field sets with
// multiplicity, blobs by media type and bytes, text by exact string. A text
// expectation is also compared against the raw bytes of a received blob
// when those bytes are valid UTF-8.
package body
