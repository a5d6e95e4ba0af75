package transport

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/guestexec/internal/request"
)

// wireRequest is one newline-delimited frame from the host side. Body is
// decoded per opcode; opcodes that carry no payload leave it null.
type wireRequest struct {
	Name  string              `json:"name"`
	Op    request.Op          `json:"op"`
	Creds request.Credentials `json:"creds"`
	Body  json.RawMessage     `json:"body,omitempty"`
}

// wireResponse mirrors agent.Response. Data is base64 via encoding/json's
// []byte handling; Len is explicit because payloads may hold NUL bytes.
type wireResponse struct {
	Code string `json:"code"`
	Len  int    `json:"len"`
	Data []byte `json:"data,omitempty"`
}

func unmarshalBody(op request.Op, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("opcode %v requires a body", op)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("opcode %v body: %w", op, err)
	}
	return nil
}

// decodeBody maps an opcode to its payload struct. The returned value is the
// struct itself, not a pointer, matching what the dispatcher asserts on.
// Opcodes with an optional body decode to nil when none was sent.
func decodeBody(op request.Op, raw json.RawMessage) (any, error) {
	switch op {
	case request.OpRunProgram:
		var b request.RunProgram
		return b, unmarshalBody(op, raw, &b)
	case request.OpStartProgram:
		var b request.StartProgram
		return b, unmarshalBody(op, raw, &b)
	case request.OpRunScript:
		var b request.RunScript
		return b, unmarshalBody(op, raw, &b)

	case request.OpDeleteFile, request.OpDeleteDirectory, request.OpDeleteEmptyDirectory,
		request.OpFileExists, request.OpDirectoryExists, request.OpGetFileInfo:
		var b request.Path
		return b, unmarshalBody(op, raw, &b)

	case request.OpListDirectory:
		var b request.ListDirectory
		return b, unmarshalBody(op, raw, &b)
	case request.OpListFiles:
		var b request.ListFiles
		return b, unmarshalBody(op, raw, &b)

	case request.OpListProcessesEx:
		if len(raw) == 0 {
			return nil, nil
		}
		var b request.ListProcessesEx
		return b, unmarshalBody(op, raw, &b)
	case request.OpKillProcess:
		var b request.KillProcess
		return b, unmarshalBody(op, raw, &b)

	case request.OpMoveFile, request.OpMoveFileEx, request.OpMoveDirectory:
		var b request.Move
		return b, unmarshalBody(op, raw, &b)
	case request.OpCreateDirectory, request.OpCreateDirectoryEx:
		var b request.CreateDirectory
		return b, unmarshalBody(op, raw, &b)
	case request.OpCreateTempFile, request.OpCreateTempFileEx, request.OpCreateTempDirectory:
		var b request.CreateTemp
		return b, unmarshalBody(op, raw, &b)
	case request.OpSetFileAttributes:
		var b request.SetFileAttributes
		return b, unmarshalBody(op, raw, &b)

	case request.OpReadVariable:
		var b request.ReadVariable
		return b, unmarshalBody(op, raw, &b)
	case request.OpWriteVariable:
		var b request.WriteVariable
		return b, unmarshalBody(op, raw, &b)
	case request.OpReadEnvVariables:
		if len(raw) == 0 {
			return nil, nil
		}
		var b request.ReadEnvVariables
		return b, unmarshalBody(op, raw, &b)

	case request.OpOpenURL:
		var b request.OpenURL
		return b, unmarshalBody(op, raw, &b)
	case request.OpRelayPacket:
		var b request.Packet
		return b, unmarshalBody(op, raw, &b)
	case request.OpSetNetworkConfig:
		var b request.SetNetworkConfig
		return b, unmarshalBody(op, raw, &b)

	default:
		// No payload, or an opcode the dispatcher rejects itself.
		return nil, nil
	}
}
