// package transport contains the strategies behind [model.Transport].
//
// the native transport hands out the response body of a client that
// streams by itself. the emulated transport drives a request object that
// only reports progress on a growing response snapshot (see package
// legacy) and turns those notifications into a chunk stream, with a
// [ChunkParser] deciding how a snapshot becomes the next chunk.
package transport
