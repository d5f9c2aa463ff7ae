// Package capture sequences a full screenshot: device lookup, CRTC
// discovery, framebuffer export and mapping, pixel conversion, and the PNG
// write.
//
// Every stage failure is tagged with a marker from errors.go so callers can
// classify outcomes with errors.Is however deeply the cause is wrapped.
// The device, the exported dma-buf, and the mapping live for a single Run
// call and are released exactly once on every path. A file lock keeps
// concurrent invocations from racing each other over the display state.
package capture
