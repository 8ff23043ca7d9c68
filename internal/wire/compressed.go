package wire

// DecodeCompressed acknowledges OP_COMPRESSED without decompressing it.
// Decompression is deliberately unimplemented and compression is never
// negotiated in hello; this decoder always returns ErrUnsupported. The
// dispatcher does not call it: it drops OP_COMPRESSED frames with a
// warning and sends no reply.
func DecodeCompressed(_ Frame) error {
	return ErrUnsupported
}
