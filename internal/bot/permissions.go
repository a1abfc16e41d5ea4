package bot

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user holds the admin role
// before executing privileged slash commands (joining and leaving voice
// channels, starting and stopping translation sessions).
type PermissionChecker struct {
	adminRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
func NewPermissionChecker(adminRoleID string) *PermissionChecker {
	return &PermissionChecker{adminRoleID: adminRoleID}
}

// IsAdmin checks whether the interaction author has the configured admin
// role. An empty role ID treats all users as admins. Returns false when the
// interaction carries no Member (e.g., DM channel interactions).
func (p *PermissionChecker) IsAdmin(i *discordgo.InteractionCreate) bool {
	if p.adminRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.adminRoleID)
}
