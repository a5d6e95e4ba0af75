package agent

import "github.com/loykin/guestexec/internal/status"

// Response is the normalized outcome of one dispatched operation. Data is
// never nil: operations with nothing to say share the empty buffer with
// Owned false, and the transport must not mutate or retain it. Len is
// explicit because binary payloads (relayed packets, agent state) may be
// shorter than the buffer or contain NUL bytes.
type Response struct {
	Data  []byte
	Len   int
	Owned bool
	Code  status.Code
}

var emptyResult = []byte{}

// textResponse builds a Response from a text result. The error, if any,
// travels as the code; a non-empty partial result is preserved alongside it.
func textResponse(text string, err error) Response {
	resp := Response{Data: emptyResult, Code: status.CodeOf(err)}
	if text != "" {
		resp.Data = []byte(text)
		resp.Len = len(resp.Data)
		resp.Owned = true
	}
	return resp
}

// binaryResponse builds a Response carrying an explicit length.
func binaryResponse(data []byte, err error) Response {
	resp := Response{Data: emptyResult, Code: status.CodeOf(err)}
	if len(data) > 0 {
		resp.Data = data
		resp.Len = len(data)
		resp.Owned = true
	}
	return resp
}

// errResponse is a bare failure with the shared empty buffer.
func errResponse(err error) Response {
	return Response{Data: emptyResult, Code: status.CodeOf(err)}
}

// okResponse is a bare success.
func okResponse() Response {
	return Response{Data: emptyResult, Code: status.OK}
}
