package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/metrics"
	"github.com/BadgersMC/LumalyteSRV/internal/model"
	"github.com/BadgersMC/LumalyteSRV/internal/repository"
)

// CodeTTL is how long an issued linking code stays redeemable.
const CodeTTL = 900 * time.Second

// maxCodeAttempts bounds the uniqueness retry loop in IssueCode.
const maxCodeAttempts = 10

// Player-facing messages, returned verbatim by the proxy commands.
const (
	msgLinked        = "Successfully linked your account!"
	msgAlreadyLinked = "Your account is already linked to a Discord account."
	msgCodeExpired   = "This code has expired. Please run !link in Discord to get a new code."
	msgCodeInvalid   = "Invalid code. Please run !link in Discord to get a new code."
	msgUnlinked      = "Successfully unlinked your account!"
	msgNotLinked     = "Your account is not linked to a Discord account."
)

// LinkStore is the persistence surface the coordinator needs. Implemented by
// repository.LinkRepository.
type LinkStore interface {
	SavePendingCode(ctx context.Context, discordID, code string, cutoff time.Time) (bool, error)
	Redeem(ctx context.Context, uuid, code string, cutoff time.Time) (repository.RedeemOutcome, string, error)
	Unlink(ctx context.Context, uuid string) (bool, string, error)
	OwnerOf(ctx context.Context, uuid string) (string, error)
	CountLinks(ctx context.Context) (int, error)
	CountPending(ctx context.Context, cutoff time.Time) (int, error)
}

// RoleSyncer mirrors committed link state into Discord roles. Calls must not
// block and their failures must not affect the stored link.
type RoleSyncer interface {
	OnLinked(discordID string)
	OnUnlinked(discordID string)
}

// LinkService coordinates the account-linking handshake: it issues codes on
// the Discord side and redeems them on the game side. All multi-step
// check-then-act sequences run inside a single store transaction; the service
// itself keeps no link state in memory.
type LinkService struct {
	store LinkStore
	roles RoleSyncer

	now     func() time.Time
	newCode func() (string, error)
}

func NewLinkService(store LinkStore) *LinkService {
	return &LinkService{
		store:   store,
		now:     time.Now,
		newCode: randomCode,
	}
}

// SetRoleSync wires the role mirror. Called once the bot session exists.
func (s *LinkService) SetRoleSync(roles RoleSyncer) {
	s.roles = roles
}

// randomCode draws a 6-digit decimal code from [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (s *LinkService) cutoff() time.Time {
	return s.now().Add(-CodeTTL)
}

// IssueCode generates a code for a Discord user and stores it, replacing any
// code that user already had. The store accepts the code only if no other
// unexpired pending code carries the same value, check and write in one
// transaction; a rejected draw is retried, and exhausting the retry bound is
// surfaced as ErrCodeSpaceExhausted.
func (s *LinkService) IssueCode(ctx context.Context, discordID string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}

		saved, err := s.store.SavePendingCode(ctx, discordID, code, s.cutoff())
		if err != nil {
			return "", fmt.Errorf("store link code: %w", err)
		}
		if !saved {
			continue
		}

		metrics.CodesIssued.Inc()
		log.Debug().Str("discord_id", discordID).Msg("issued link code")
		return code, nil
	}

	log.Error().Str("discord_id", discordID).Int("attempts", maxCodeAttempts).
		Msg("link code space exhausted")
	return "", ErrCodeSpaceExhausted
}

// Link redeems a code for a game account. Validation outcomes are carried in
// the result; only store failures surface as an error, in which case nothing
// was committed and the caller should retry later.
func (s *LinkService) Link(ctx context.Context, uuid, code string) (model.LinkResult, error) {
	outcome, discordID, err := s.store.Redeem(ctx, uuid, code, s.cutoff())
	if err != nil {
		metrics.LinkAttempts.WithLabelValues("error").Inc()
		return model.LinkResult{}, fmt.Errorf("redeem link code: %w", err)
	}

	switch outcome {
	case repository.RedeemLinked:
		metrics.LinkAttempts.WithLabelValues("linked").Inc()
		log.Info().Str("uuid", uuid).Str("discord_id", discordID).Msg("linked account")
		if s.roles != nil {
			s.roles.OnLinked(discordID)
		}
		return model.LinkResult{Success: true, DiscordID: discordID, Message: msgLinked}, nil
	case repository.RedeemAlreadyLinked:
		metrics.LinkAttempts.WithLabelValues("already_linked").Inc()
		return model.LinkResult{Message: msgAlreadyLinked}, nil
	case repository.RedeemExpired:
		metrics.LinkAttempts.WithLabelValues("expired").Inc()
		log.Debug().Str("uuid", uuid).Msg("link code expired")
		return model.LinkResult{Message: msgCodeExpired}, nil
	default:
		metrics.LinkAttempts.WithLabelValues("invalid").Inc()
		return model.LinkResult{Message: msgCodeInvalid}, nil
	}
}

// Unlink removes a game account's link. Calling it for an unlinked account is
// not an error; the result just reports "not linked".
func (s *LinkService) Unlink(ctx context.Context, uuid string) (model.UnlinkResult, error) {
	found, discordID, err := s.store.Unlink(ctx, uuid)
	if err != nil {
		metrics.Unlinks.WithLabelValues("error").Inc()
		return model.UnlinkResult{}, fmt.Errorf("unlink account: %w", err)
	}
	if !found {
		metrics.Unlinks.WithLabelValues("not_linked").Inc()
		return model.UnlinkResult{Message: msgNotLinked}, nil
	}

	metrics.Unlinks.WithLabelValues("unlinked").Inc()
	log.Info().Str("uuid", uuid).Str("discord_id", discordID).Msg("unlinked account")
	if s.roles != nil {
		s.roles.OnUnlinked(discordID)
	}
	return model.UnlinkResult{Success: true, DiscordID: discordID, Message: msgUnlinked}, nil
}

// Owner returns the Discord id linked to a uuid, or "" when unlinked.
func (s *LinkService) Owner(ctx context.Context, uuid string) (string, error) {
	return s.store.OwnerOf(ctx, uuid)
}

// Stats returns link counts for the admin surface.
func (s *LinkService) Stats(ctx context.Context) (links, pending int, err error) {
	links, err = s.store.CountLinks(ctx)
	if err != nil {
		return 0, 0, err
	}
	pending, err = s.store.CountPending(ctx, s.cutoff())
	if err != nil {
		return 0, 0, err
	}
	return links, pending, nil
}
