package frame

// A PCMFrame is a run of interleaved floating point samples in [-1, 1].
//
// Frames handed to another component (e.g. the recorder) are shared, not copied.
// Once sent, a PCMFrame must not be mutated by its producer.
type PCMFrame []float32

// An EncodedFrame is a single codec payload, e.g. one RTP packet worth of Opus data.
type EncodedFrame []byte
