package stream

// DataFunc is the application data callback. It is invoked on the hardware
// thread once per buffer and cycle. For output streams it must fill buf; for
// input streams buf holds captured audio in the application format and is only
// valid for the duration of the call. It must not block.
type DataFunc func(buf []byte)

// HandleFunc is a host entry point that takes two opaque handles, such as an
// owning object and a method selector, alongside the buffer.
type HandleFunc func(buf []byte, object, method any)

// Bind adapts a HandleFunc into a DataFunc that forwards object and method
// verbatim on every call. Neither handle is inspected.
func Bind(fn HandleFunc, object, method any) DataFunc {
	if fn == nil {
		return nil
	}
	return func(buf []byte) {
		fn(buf, object, method)
	}
}
