// Package snapshot stores keyspace snapshots in a single file.
//
// File layout:
//
//	magic      "EMBERKV1"
//	hdrLen     uint32 big-endian
//	header     JSON (version, creation time, key count, encryption params)
//	bodyLen    uint64 big-endian
//	body       protowire message: repeated field 1 holding one record per
//	           key (field 1 db varint, 2 key bytes, 3 value bytes),
//	           sealed with an AEAD cipher when encryption is on
//	checksum   sha256 of everything above
//
// A save writes a temp file and renames it over the previous one after
// rotating older copies to <name>.1, <name>.2 and so on.
package snapshot
