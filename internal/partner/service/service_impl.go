package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/partner/domain"
	"go.uber.org/zap"
)

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(log *zap.Logger, repo domain.Repository) domain.Service {
	return &Service{
		log:  log.Named("partner.service"),
		repo: repo,
	}
}

func (s *Service) AttributionCode(ctx context.Context, userID snowflake.ID) (string, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return "", domain.ErrAttributionMissing
		}
		return "", err
	}

	code := strings.TrimSpace(profile.PartnerCode)
	if code == "" {
		return "", domain.ErrAttributionMissing
	}
	return code, nil
}

func (s *Service) ProfileByUserID(ctx context.Context, userID snowflake.ID) (*domain.Profile, error) {
	return s.repo.FindByUserID(ctx, userID)
}
