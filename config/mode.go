// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"
)

// Mode is the deployment mode of the node. It is chosen once at startup and
// never changes for the lifetime of the process.
type Mode uint8

const (
	ModeCollator Mode = iota
	ModeFullNode
	ModeStandaloneDev
)

func (m Mode) String() string {
	switch m {
	case ModeCollator:
		return "collator"
	case ModeFullNode:
		return "full"
	case ModeStandaloneDev:
		return "dev"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Parachain is true for modes that anchor against a relay chain.
func (m Mode) Parachain() bool {
	return m == ModeCollator || m == ModeFullNode
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "collator":
		return ModeCollator, nil
	case "full", "fullnode", "full-node":
		return ModeFullNode, nil
	case "dev", "standalone", "instant-seal":
		return ModeStandaloneDev, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}

// Role determines whether the local node attempts block production.
type Role uint8

const (
	RoleParticipant Role = iota
	RoleAuthority
)

func (r Role) String() string {
	switch r {
	case RoleParticipant:
		return "participant"
	case RoleAuthority:
		return "authority"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

func (r Role) IsAuthority() bool {
	return r == RoleAuthority
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "authority", "validator":
		return RoleAuthority, nil
	case "participant", "full", "":
		return RoleParticipant, nil
	case "light":
		return 0, ErrLightClient
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

func (r *Role) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}

// ParaID identifies a parachain on the relay chain.
type ParaID uint32
