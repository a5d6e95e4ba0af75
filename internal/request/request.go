package request

// Op identifies one guest operation. Values are stable: they are what the
// host-side controller puts on the wire, so they must not be renumbered.
type Op int32

const (
	OpUnknown Op = iota
	OpCheckUserAccount
	OpLogout
	OpGetAgentState
	OpListProcesses
	OpListProcessesEx
	OpListDirectory
	OpListFiles
	OpDeleteFile
	OpDeleteRegistryKey
	OpDeleteDirectory
	OpDeleteEmptyDirectory
	OpFileExists
	OpDirectoryExists
	OpRegistryKeyExists
	OpReadRegistry
	OpWriteRegistry
	OpKillProcess
	OpCreateDirectory
	OpCreateDirectoryEx
	OpMoveFile
	OpMoveFileEx
	OpMoveDirectory
	OpRunScript
	OpRunProgram
	OpStartProgram
	OpOpenURL
	OpCreateTempFile
	OpCreateTempFileEx
	OpCreateTempDirectory
	OpReadVariable
	OpReadEnvVariables
	OpWriteVariable
	OpGetFileInfo
	OpSetFileAttributes
	OpRelayPacket
	OpGetNetworkConfig
	OpSetNetworkConfig
	OpListFileSystems
)

// CredentialType tags the credential block carried by every request.
type CredentialType int32

const (
	CredNamePassword CredentialType = iota + 1
	CredNamePasswordObfuscated
	CredRoot
	CredConsoleUser
	CredNamedInteractiveUser
)

// Credentials is the already-unwrapped credential block. The transport codec
// (out of scope here) is responsible for de-obfuscation; by the time a request
// reaches the dispatcher the name and password are plain text.
type Credentials struct {
	Type     CredentialType
	User     string
	Password string
}

// Request is one decoded host request. It is read-only to the executor and
// valid only for the duration of a single dispatch call. Body holds the
// opcode-specific payload struct (one of the types below) or nil for opcodes
// that carry no payload beyond credentials.
type Request struct {
	Op    Op
	Creds Credentials
	Body  any
}

// Run option bits shared by RunProgram and RunScript.
const (
	// RunReturnImmediately suppresses the completion report for the caller:
	// the poll loop still reaps the child, it just does not call back.
	RunReturnImmediately = 1 << iota
	// RunActivateWindow is honored only on GUI platforms.
	RunActivateWindow
)

type RunProgram struct {
	CommandLine string // program path, possibly quoted, possibly with leading spaces
	Args        string // appended verbatim after the re-quoted program path
	Options     int32
}

type StartProgram struct {
	ProgramPath    string
	Arguments      string
	WorkingDir     string
	EnvVars        []string // "K=V" overrides replacing the ambient table
	StartMinimized bool
}

type RunScript struct {
	Interpreter string // empty means the platform default shell
	ScriptText  string
	Options     int32
}

// Path is the body for single-path operations: delete/exists flavors,
// get file info, create directory (legacy form).
type Path struct {
	Path string
}

type ListDirectory struct {
	Path      string
	Offset    int64
	UseOffset bool // legacy requests have no offset and no truncation prefix
}

type ListFiles struct {
	Path       string
	Pattern    string // regexp applied to bare names; empty matches all
	Offset     int64
	Index      int32
	MaxResults int32
}

type ListProcessesEx struct {
	Pids []uint64 // empty means all
}

type KillProcess struct {
	Pid int64
}

type Move struct {
	Src       string
	Dest      string
	Overwrite bool // Ex flavors only
}

type CreateDirectory struct {
	Path          string
	CreateParents bool
}

type CreateTemp struct {
	Prefix    string
	Suffix    string
	Directory string // empty means the platform temp dir
}

// VariableKind selects the namespace for read/write variable operations.
type VariableKind int32

const (
	VarGuestEnvironment VariableKind = iota + 1
	VarGuestConfig
	VarVMConfigRuntime
	VarVMGuest
)

type ReadVariable struct {
	Kind VariableKind
	Name string
}

type WriteVariable struct {
	Kind  VariableKind
	Name  string
	Value string
}

type ReadEnvVariables struct {
	Names []string // empty means the whole environment
}

type SetFileAttributes struct {
	Path             string
	AccessTime       int64 // unix seconds
	ModificationTime int64
	Permissions      uint32
	OwnerID          int
	GroupID          int
	// The Set* flags select which groups of attributes to apply; zero
	// values in unselected groups are ignored.
	SetTimes       bool
	SetPermissions bool
	SetOwner       bool
}

type OpenURL struct {
	URL string
}

// Packet is the raw-protocol passthrough body: opaque bytes handed to the
// registered PacketProcessor, whose reply is returned with an explicit length.
type Packet struct {
	Data []byte
}

type SetNetworkConfig struct {
	DHCP       bool
	IPAddr     string
	SubnetMask string
}
