// Package codec implements the HSTable on-disk format: the record wire
// format, the fixed header/footer framing, the file loader that
// reconstructs a per-file key-hash index, and the streaming compression
// framing used for multipart values.
//
// # Record Format
//
// Records are serialized as:
//
//	flags(1) | key_size(varint) | value_size_disk(varint) | value_size_uncompressed(varint) | crc32(4) | key_bytes | value_bytes
//
// flags bits: 0x01 deletion tombstone, 0x02 compressed, 0x04 multipart
// large value. CRC32 (IEEE) is computed over key_bytes and value_bytes only;
// it does not cover the header fields. A corrupted flags byte or
// value_size_uncompressed is not detected by it, and a corrupted key_size or
// value_size_disk is caught only when it changes the bytes the CRC runs over.
package codec
