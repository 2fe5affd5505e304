// package stream implements response bodies as cancelable sequences of
// byte chunks.
//
// [Chunked] is fed by a producer (the emulated transport) and drained by
// the caller; [ReaderBody] exposes a natively streaming [io.ReadCloser]
// without any buffering of its own. Both implement [model.Body].
package stream
