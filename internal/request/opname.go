package request

var opNames = map[Op]string{
	OpCheckUserAccount:     "CheckUserAccount",
	OpLogout:               "Logout",
	OpGetAgentState:        "GetAgentState",
	OpListProcesses:        "ListProcesses",
	OpListProcessesEx:      "ListProcessesEx",
	OpListDirectory:        "ListDirectory",
	OpListFiles:            "ListFiles",
	OpDeleteFile:           "DeleteFile",
	OpDeleteRegistryKey:    "DeleteRegistryKey",
	OpDeleteDirectory:      "DeleteDirectory",
	OpDeleteEmptyDirectory: "DeleteEmptyDirectory",
	OpFileExists:           "FileExists",
	OpDirectoryExists:      "DirectoryExists",
	OpRegistryKeyExists:    "RegistryKeyExists",
	OpReadRegistry:         "ReadRegistry",
	OpWriteRegistry:        "WriteRegistry",
	OpKillProcess:          "KillProcess",
	OpCreateDirectory:      "CreateDirectory",
	OpCreateDirectoryEx:    "CreateDirectoryEx",
	OpMoveFile:             "MoveFile",
	OpMoveFileEx:           "MoveFileEx",
	OpMoveDirectory:        "MoveDirectory",
	OpRunScript:            "RunScript",
	OpRunProgram:           "RunProgram",
	OpStartProgram:         "StartProgram",
	OpOpenURL:              "OpenURL",
	OpCreateTempFile:       "CreateTempFile",
	OpCreateTempFileEx:     "CreateTempFileEx",
	OpCreateTempDirectory:  "CreateTempDirectory",
	OpReadVariable:         "ReadVariable",
	OpReadEnvVariables:     "ReadEnvVariables",
	OpWriteVariable:        "WriteVariable",
	OpGetFileInfo:          "GetFileInfo",
	OpSetFileAttributes:    "SetFileAttributes",
	OpRelayPacket:          "RelayPacket",
	OpGetNetworkConfig:     "GetNetworkConfig",
	OpSetNetworkConfig:     "SetNetworkConfig",
	OpListFileSystems:      "ListFileSystems",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "Unknown"
}
