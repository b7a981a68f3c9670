package surface

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidIdentity = errors.New("surface: invalid identity")

// Identity is the provider-assigned key of one tracked surface. Identities are
// never reused within a session.
type Identity uuid.UUID

// NilIdentity is the zero identity; it never names a surface.
var NilIdentity Identity

func NewIdentity() Identity {
	return Identity(uuid.New())
}

func ParseIdentity(raw string) (Identity, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return NilIdentity, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return Identity(id), nil
}

// IdentityFromBytes decodes the 16-byte wire form.
func IdentityFromBytes(b []byte) (Identity, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return NilIdentity, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return Identity(id), nil
}

func (id Identity) String() string {
	return uuid.UUID(id).String()
}

func (id Identity) IsNil() bool {
	return id == NilIdentity
}

// Bytes returns a copy of the 16-byte wire form.
func (id Identity) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
