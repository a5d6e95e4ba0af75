// Package impersonate decides which identity a request executes under. Every
// dispatched operation passes through Gate.Acquire before its handler runs
// and Gate.Release afterwards, on every exit path, so a failed handler can
// never leave the agent in a switched security context.
package impersonate

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// Identity is an authenticated local account.
type Identity struct {
	Username string
	UID      uint32
	GID      uint32
}

// Authenticator verifies a name/password pair against the guest's account
// database. The production wiring plugs a PAM-backed implementation here;
// tests use scripted fakes.
type Authenticator interface {
	Authenticate(username, password string) (Identity, error)
}

// Switcher moves the execution context to another identity and back. Begin
// and End calls are strictly paired by the Gate.
type Switcher interface {
	Begin(id Identity) error
	End()
}

type tokenKind int

const (
	// tokenSurrogate marks requests that run as the agent's own identity.
	tokenSurrogate tokenKind = iota
	// tokenAcquired marks requests running under an authenticated identity
	// that must be reverted on release.
	tokenAcquired
)

// Token is the proof that Acquire succeeded. The zero Token is a surrogate
// and may be released safely.
type Token struct {
	kind     tokenKind
	identity Identity
}

// Acquired reports whether releasing the token reverts a context switch.
func (t Token) Acquired() bool { return t.kind == tokenAcquired }

// Credential returns the uid/gid to launch children under, or nil for
// surrogate tokens (children inherit the agent's identity).
func (t Token) Credential() *syscall.Credential {
	if t.kind != tokenAcquired {
		return nil
	}
	return &syscall.Credential{Uid: t.identity.UID, Gid: t.identity.GID}
}

// Gate applies the per-credential-type impersonation policy.
type Gate struct {
	auth             Authenticator
	sw               Switcher
	privileged       bool
	allowConsoleUser bool
}

// New builds a Gate. auth may be nil, which rejects name/password requests
// as unsupported. sw may be nil for surrogate-only configurations.
func New(auth Authenticator, sw Switcher) *Gate {
	return &Gate{
		auth:       auth,
		sw:         sw,
		privileged: os.Geteuid() == 0,
	}
}

// SetConsoleUserPolicy toggles whether console-user credentials are accepted
// while the agent runs privileged.
func (g *Gate) SetConsoleUserPolicy(allow bool) { g.allowConsoleUser = allow }

// Privileged reports whether the agent runs as root.
func (g *Gate) Privileged() bool { return g.privileged }

// Acquire validates the credential block and switches context when the type
// demands it. On any error the context is unchanged and the returned Token
// is the zero surrogate.
func (g *Gate) Acquire(creds request.Credentials) (Token, error) {
	switch creds.Type {
	case request.CredRoot:
		if !g.privileged {
			return Token{}, status.Errf(status.ErrPermission, "root credential requires a privileged agent")
		}
		return Token{kind: tokenSurrogate}, nil

	case request.CredConsoleUser:
		if g.privileged && !g.allowConsoleUser {
			return Token{}, status.Errf(status.ErrPermission, "console user access is disabled")
		}
		return Token{kind: tokenSurrogate}, nil

	case request.CredNamedInteractiveUser:
		me, err := currentUsername()
		if err != nil {
			return Token{}, status.Wrap(status.ErrFail, err)
		}
		if creds.User == "" || creds.User != me {
			return Token{}, status.Errf(status.ErrUserMismatch, "interactive user %q does not own this session", creds.User)
		}
		return Token{kind: tokenSurrogate}, nil

	case request.CredNamePassword, request.CredNamePasswordObfuscated:
		if creds.Password == "" {
			return Token{}, status.New(status.ErrEmptyPassword)
		}
		if g.auth == nil {
			return Token{}, status.Errf(status.ErrUnsupported, "password authentication is not configured")
		}
		id, err := g.auth.Authenticate(creds.User, creds.Password)
		if err != nil {
			return Token{}, status.Wrap(status.ErrPermission, err)
		}
		if g.sw != nil {
			if err := g.sw.Begin(id); err != nil {
				return Token{}, status.Wrap(status.ErrPermission, err)
			}
		}
		return Token{kind: tokenAcquired, identity: id}, nil

	default:
		return Token{}, status.Errf(status.ErrUnsupported, "credential type %d", creds.Type)
	}
}

// Release reverts the context switch for acquired tokens. It is safe to call
// with any token, including the zero value, and is intended for defer.
func (g *Gate) Release(tok Token) {
	if tok.kind == tokenAcquired && g.sw != nil {
		g.sw.End()
	}
}

// Username resolves the identity a token runs as. Acquired tokens carry the
// authenticated name; surrogate tokens resolve the agent's current user.
func (g *Gate) Username(tok Token) (string, error) {
	if tok.kind == tokenAcquired {
		return tok.identity.Username, nil
	}
	return currentUsername()
}

func currentUsername() (string, error) {
	if u, err := user.Current(); err == nil {
		return u.Username, nil
	}
	// Fall back to a uid lookup when the current user is not resolvable
	// through the default path (static binaries with no cgo NSS).
	u, err := user.LookupId(strconv.Itoa(os.Getuid()))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
