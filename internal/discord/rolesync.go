package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
)

// RoleSync mirrors committed link state into guild roles. Every call is
// fire-and-forget: a failed grant or revoke is logged and never affects the
// stored link. Implements service.RoleSyncer.
type RoleSync struct {
	session        *discordgo.Session
	guildID        string
	linkedRoleID   string
	verifiedRoleID string
}

func NewRoleSync(session *discordgo.Session, cfg *config.Config) *RoleSync {
	return &RoleSync{
		session:        session,
		guildID:        cfg.GuildID,
		linkedRoleID:   cfg.LinkedRoleID,
		verifiedRoleID: cfg.VerifiedRoleID,
	}
}

func (rs *RoleSync) enabled() bool {
	return rs != nil && rs.session != nil && rs.guildID != ""
}

// OnLinked grants the configured roles after a link commits.
func (rs *RoleSync) OnLinked(discordID string) {
	if !rs.enabled() {
		return
	}
	go func() {
		for _, roleID := range []string{rs.linkedRoleID, rs.verifiedRoleID} {
			if roleID == "" {
				continue
			}
			if err := rs.session.GuildMemberRoleAdd(rs.guildID, discordID, roleID); err != nil {
				log.Error().Err(err).Str("discord_id", discordID).Str("role_id", roleID).
					Msg("failed to grant role")
			}
		}
	}()
}

// OnUnlinked revokes the configured roles after an unlink commits.
func (rs *RoleSync) OnUnlinked(discordID string) {
	if !rs.enabled() {
		return
	}
	go func() {
		for _, roleID := range []string{rs.linkedRoleID, rs.verifiedRoleID} {
			if roleID == "" {
				continue
			}
			if err := rs.session.GuildMemberRoleRemove(rs.guildID, discordID, roleID); err != nil {
				log.Error().Err(err).Str("discord_id", discordID).Str("role_id", roleID).
					Msg("failed to revoke role")
			}
		}
	}()
}
