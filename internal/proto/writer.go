package proto

func newWriter(buf []byte) *Writer {
	return &Writer{buffer: buf, cursor: 0}
}

// Writer sequentially writes big-endian values into a preallocated buffer.
type Writer struct {
	buffer []byte
	cursor int
}

func (w *Writer) u8(b uint8) *Writer {
	w.buffer[w.cursor] = b
	w.cursor++
	return w
}

func (w *Writer) u16(val uint16) *Writer {
	u16Marshal(w.buffer[w.cursor:], val)
	w.cursor += 2
	return w
}

func (w *Writer) u32(val uint32) *Writer {
	u32Marshal(w.buffer[w.cursor:], val)
	w.cursor += 4
	return w
}

func (w *Writer) i32(val int32) *Writer {
	return w.u32(uint32(val))
}
