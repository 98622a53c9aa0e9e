// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"

	"github.com/luxfi/multibridge"
)

// Role names a permission.
type Role string

const (
	DefaultAdminRole      Role = "DEFAULT_ADMIN_ROLE"
	PauserRole            Role = "PAUSE_ROLE"
	MessageOriginatorRole Role = "MESSAGE_ORIGINATOR_ROLE"
)

// RoleChecker answers permission checks.
type RoleChecker interface {
	HasRole(role Role, account common.Address) bool
}

var _ RoleChecker = (*AccessControl)(nil)

// AccessControl is a role table administered by DefaultAdminRole holders.
type AccessControl struct {
	mu      sync.RWMutex
	members map[Role]set.Set[common.Address]
}

// NewAccessControl grants admin the DefaultAdminRole.
func NewAccessControl(admin common.Address) *AccessControl {
	ac := &AccessControl{members: make(map[Role]set.Set[common.Address])}
	ac.grant(DefaultAdminRole, admin)
	return ac
}

func (ac *AccessControl) HasRole(role Role, account common.Address) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.members[role].Contains(account)
}

// Grant gives account role; caller must be an admin.
func (ac *AccessControl) Grant(caller common.Address, role Role, account common.Address) error {
	if err := requireRole(ac, DefaultAdminRole, caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return fmt.Errorf("%w: role member", multibridge.ErrZeroAddress)
	}
	ac.grant(role, account)
	return nil
}

// Revoke removes role from account; caller must be an admin.
func (ac *AccessControl) Revoke(caller common.Address, role Role, account common.Address) error {
	if err := requireRole(ac, DefaultAdminRole, caller); err != nil {
		return err
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if members, ok := ac.members[role]; ok {
		members.Remove(account)
	}
	return nil
}

func (ac *AccessControl) grant(role Role, account common.Address) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	members, ok := ac.members[role]
	if !ok {
		members = set.NewSet[common.Address](1)
		ac.members[role] = members
	}
	members.Add(account)
}

func requireRole(roles RoleChecker, role Role, caller common.Address) error {
	if !roles.HasRole(role, caller) {
		return fmt.Errorf("%w: %s missing %s", multibridge.ErrUnauthorized, caller, role)
	}
	return nil
}
