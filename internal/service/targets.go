package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// TargetOutcome is the result of one site in a multi-site run.
type TargetOutcome struct {
	Request crawler.Request
	Result  crawler.Result
	Err     error
}

// RunTargets crawls each target in order with the site delay in between. A
// failing site does not stop the run; cancellation does, and the remaining
// targets are reported with the context error.
func (s *Service) RunTargets(ctx context.Context, targets []crawler.Request) []TargetOutcome {
	outcomes := make([]TargetOutcome, 0, len(targets))
	for i, req := range targets {
		if req.TriggeredBy == "" {
			req.TriggeredBy = crawler.TriggerCron
		}
		if i > 0 {
			if err := s.pauseBetweenSites(ctx); err != nil {
				for _, rest := range targets[i:] {
					outcomes = append(outcomes, TargetOutcome{Request: rest, Err: err})
				}
				break
			}
		}
		res, err := s.Run(ctx, req)
		if err != nil {
			s.logger.Warn("target failed",
				zap.String("url", req.TargetURL),
				zap.String("kind", string(crawler.FailureKindOf(err))),
				zap.Error(err))
		}
		outcomes = append(outcomes, TargetOutcome{Request: req, Result: res, Err: err})
	}
	return outcomes
}

func (s *Service) pauseBetweenSites(ctx context.Context) error {
	if s.cfg.SiteDelay < 0 {
		return ctx.Err()
	}
	if err := s.deps.Pauser.Pause(ctx, s.cfg.SiteDelay); err != nil {
		return fmt.Errorf("run interrupted between sites: %w", err)
	}
	return nil
}
