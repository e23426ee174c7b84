// Package chunk splits long text into token-bounded segments for
// translation.
//
// Chunks are non-overlapping partitions of the input: paragraphs are packed
// greedily up to the token limit and never split across chunks, so joining
// every chunk in order reconstructs the original paragraph sequence with no
// duplicated and no dropped content. A paragraph that alone exceeds the
// limit falls back to sentence-level packing.
package chunk
