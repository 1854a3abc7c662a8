package memory

import (
	"context"

	"exam-attempt-service/internal/domain"
)

// StaticContentStore serves papers from an in-memory map (useful for tests
// and the no-database demo mode).
type StaticContentStore struct {
	papers map[string]domain.Paper
}

func NewStaticContentStore(papers map[string]domain.Paper) *StaticContentStore {
	if papers == nil {
		papers = make(map[string]domain.Paper)
	}
	return &StaticContentStore{papers: papers}
}

func (s *StaticContentStore) FindPaper(_ context.Context, paperID string) (domain.Paper, error) {
	if paper, ok := s.papers[paperID]; ok {
		return paper, nil
	}
	return domain.Paper{}, domain.ErrPaperNotFound
}

// Put replaces a paper in place. Exposed so tests can edit live content and
// verify snapshot insulation.
func (s *StaticContentStore) Put(paper domain.Paper) {
	s.papers[paper.ID] = paper
}

// AllowAllGate grants every (user, paper) pair; demo-mode stand-in for the
// subscription service.
type AllowAllGate struct{}

func NewAllowAllGate() AllowAllGate {
	return AllowAllGate{}
}

func (AllowAllGate) HasAccess(context.Context, string, string) (bool, error) {
	return true, nil
}

// StaticGate grants access from a fixed user -> papers map.
type StaticGate struct {
	grants map[string]map[string]bool
}

func NewStaticGate(grants map[string][]string) *StaticGate {
	indexed := make(map[string]map[string]bool, len(grants))
	for user, papers := range grants {
		indexed[user] = make(map[string]bool, len(papers))
		for _, paper := range papers {
			indexed[user][paper] = true
		}
	}
	return &StaticGate{grants: indexed}
}

func (g *StaticGate) HasAccess(_ context.Context, userID, paperID string) (bool, error) {
	return g.grants[userID][paperID], nil
}
