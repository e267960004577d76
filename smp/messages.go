package smp

// ImageUploadRequest is one chunk of an image upload. Len is only sent with
// the first chunk.
type ImageUploadRequest struct {
	Image int    `cbor:"image,omitempty"`
	Len   int    `cbor:"len,omitempty"`
	Off   int    `cbor:"off"`
	Data  []byte `cbor:"data"`
}

// FileUploadRequest is one chunk of a file upload. Len is only sent with the
// first chunk.
type FileUploadRequest struct {
	Name string `cbor:"name"`
	Len  int    `cbor:"len,omitempty"`
	Off  int    `cbor:"off"`
	Data []byte `cbor:"data"`
}

// FileDownloadRequest asks for the chunk of a file starting at Off.
type FileDownloadRequest struct {
	Name string `cbor:"name"`
	Off  int    `cbor:"off"`
}

// UploadResponse confirms the offset the device has stored.
type UploadResponse struct {
	RC  ReturnCode `cbor:"rc"`
	Off int        `cbor:"off"`
}

// FileDownloadResponse carries one chunk of a file. Len is only present in
// the response to offset 0.
type FileDownloadResponse struct {
	RC   ReturnCode `cbor:"rc"`
	Off  int        `cbor:"off"`
	Data []byte     `cbor:"data"`
	Len  int        `cbor:"len,omitempty"`
}

// ErrorResponse is the minimal body every response can be decoded into.
// Devices rejecting an oversized frame answer EMSGSIZE and advertise their
// MTU.
type ErrorResponse struct {
	RC  ReturnCode `cbor:"rc"`
	MTU int        `cbor:"mtu,omitempty"`
}

// EchoRequest is the os group echo command.
type EchoRequest struct {
	Data string `cbor:"d"`
}

// EchoResponse is the reply to EchoRequest.
type EchoResponse struct {
	RC   ReturnCode `cbor:"rc"`
	Data string     `cbor:"r"`
}
