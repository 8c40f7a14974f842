package uvc

// Transport is the USB stack capability consumed by the device. The stack
// owns enumeration, descriptors, and endpoint scheduling; the device only
// queries streaming state and hands over finished payloads.
type Transport interface {
	// Streaming reports whether the host is actively streaming this endpoint.
	Streaming(stream int) bool

	// Submit hands one payload for isochronous transfer on exactly one
	// stream endpoint. The payload backing array belongs to the device and
	// must not be read by the transport after it signals completion.
	Submit(stream int, payload []byte) error
}

// Handler is the callback set a transport invokes on the device. Device
// implements it; transports receive it at construction and call it from
// their own execution context.
type Handler interface {
	// TransferComplete signals that the previously submitted payload on the
	// stream finished. It must not block the caller.
	TransferComplete(stream int)

	// Commit applies a host format selection: a 1-based index into the
	// stream's frame catalog and a frame interval in 100ns units. A non-nil
	// error rejects the commit.
	Commit(stream, frameIndex int, interval100ns uint32) error

	// Suspend and Resume mirror the USB bus suspend and resume signals.
	Suspend()
	Resume()
}
