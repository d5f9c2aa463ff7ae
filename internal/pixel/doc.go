// Package pixel converts raw framebuffer pixel data into flat RGB888 frames.
//
// Two source encodings are supported: 5-6-5 packed 16-bit words and
// 8-8-8(-8) packed 32-bit words. Each decoder is a pure function over a
// single pixel value; Convert applies the decoder across a whole mapped
// buffer with bounds-checked indexing keyed by a precomputed pixel count, so
// a malformed descriptor can never read past the mapping. Upscaling the 5-
// and 6-bit channels to 8 bits uses bare shifts without bit replication, so
// the low-order bits of each byte are left zero.
package pixel
