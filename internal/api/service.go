// Package api exposes the serve-mode status endpoints over chi: recent
// pipeline runs, the consistency report, and live tier counts.
package api

import (
	"fmt"
	"os"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/runlog"
	"github.com/starford/dealsync/internal/storage"
)

// Service coordinates the run log, the report file, and the repository for
// the API layer.
type Service struct {
	runs       *runlog.DB
	repo       storage.Provider
	reportPath string
}

// NewService creates a new API service.
func NewService(runs *runlog.DB, repo storage.Provider, reportPath string) *Service {
	return &Service{runs: runs, repo: repo, reportPath: reportPath}
}

// RecentRuns returns the latest recorded pipeline runs, newest first.
func (s *Service) RecentRuns(limit int) ([]runlog.Run, error) {
	return s.runs.Recent(limit)
}

// Report reads the latest consistency report text.
func (s *Service) Report() ([]byte, error) {
	data, err := os.ReadFile(s.reportPath)
	if err != nil {
		return nil, fmt.Errorf("api: read report: %w", err)
	}
	return data, nil
}

// TierCounts is the live document census of one tier.
type TierCounts struct {
	Tier      string `json:"tier"`
	Documents int    `json:"documents"`
	Other     int    `json:"other"`
}

// Tiers counts deal documents (and unparseable leftovers) per tier.
func (s *Service) Tiers() ([]TierCounts, error) {
	out := make([]TierCounts, 0, 3)
	for _, t := range []deal.Tier{deal.TierCurrent, deal.TierPrevious, deal.TierArchive} {
		names, err := s.repo.List(t)
		if err != nil {
			return nil, fmt.Errorf("api: list %s tier: %w", t, err)
		}
		tc := TierCounts{Tier: t.String()}
		for _, name := range names {
			if _, _, ok := deal.ParseName(name); ok {
				tc.Documents++
			} else {
				tc.Other++
			}
		}
		out = append(out, tc)
	}
	return out, nil
}
