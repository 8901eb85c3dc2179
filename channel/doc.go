// Package channel implements rendezvous streams and futures.
//
// A channel is unbuffered: elements move only when a read and a write are
// pending at the same moment, copied directly between the two
// caller-owned buffers with no intermediate storage. Submissions never
// block at the API level. When no counterpart is pending the buffer is
// registered and the submission reports Blocked; the eventual completion
// is posted through the end's waitable. When counterpart capacity exists,
// min(read capacity, write remaining) elements transfer immediately and
// the operation with surplus capacity stays pending.
//
// A future is a channel restricted to one successful element transfer,
// after which both ends close automatically. Closing the writable end may
// attach a diagnostic context, delivered to the reader along with
// closure.
package channel
