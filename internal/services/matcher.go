package services

import (
	"context"
	"errors"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/mailparse"
	"github.com/tbourn/rfi-tracker/internal/repo"
)

// MatchStrategy names the strategy that associated an email with an RFI.
type MatchStrategy string

const (
	StrategyThread      MatchStrategy = "thread"
	StrategySubject     MatchStrategy = "subject"
	StrategyReplyHeader MatchStrategy = "reply_header"
)

// RFILookup resolves RFIs by the keys the strategies extract. A miss is
// reported as repo.ErrNotFound.
type RFILookup interface {
	ByThreadID(ctx context.Context, threadID string) (*domain.RFI, error)
	ByNumber(ctx context.Context, number string) (*domain.RFI, error)
	ByOutboundMessageID(ctx context.Context, messageID string) (*domain.RFI, error)
}

// DBLookup implements RFILookup over a (possibly transactional) handle.
type DBLookup struct{ DB *gorm.DB }

func (l DBLookup) ByThreadID(ctx context.Context, threadID string) (*domain.RFI, error) {
	return repo.FindRFIByThreadID(ctx, l.DB, threadID)
}

func (l DBLookup) ByNumber(ctx context.Context, number string) (*domain.RFI, error) {
	return repo.FindRFIByNumber(ctx, l.DB, number)
}

func (l DBLookup) ByOutboundMessageID(ctx context.Context, messageID string) (*domain.RFI, error) {
	return repo.FindRFIByOutboundMessageID(ctx, l.DB, messageID)
}

// rfiTokenRE finds an RFI number in a subject line.
var rfiTokenRE = regexp.MustCompile(`(?i)\bRFI-[A-Z0-9]+-\d+\b`)

var upper = cases.Upper(language.Und)

// ExtractRFINumber returns the first RFI number in subject, upper-cased, or "".
func ExtractRFINumber(subject string) string {
	tok := rfiTokenRE.FindString(subject)
	if tok == "" {
		return ""
	}
	return upper.String(tok)
}

// strategy returns the matched RFI, nil on a miss, or an error.
type strategy struct {
	name MatchStrategy
	find func(ctx context.Context, l RFILookup, e *mailparse.Email) (*domain.RFI, error)
}

func byThread(ctx context.Context, l RFILookup, e *mailparse.Email) (*domain.RFI, error) {
	if e.ThreadID == "" {
		return nil, nil
	}
	return miss(l.ByThreadID(ctx, e.ThreadID))
}

func bySubject(ctx context.Context, l RFILookup, e *mailparse.Email) (*domain.RFI, error) {
	n := ExtractRFINumber(e.Subject)
	if n == "" {
		return nil, nil
	}
	return miss(l.ByNumber(ctx, n))
}

func byReplyHeader(ctx context.Context, l RFILookup, e *mailparse.Email) (*domain.RFI, error) {
	if e.InReplyTo == "" {
		return nil, nil
	}
	return miss(l.ByOutboundMessageID(ctx, e.InReplyTo))
}

func miss(r *domain.RFI, err error) (*domain.RFI, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// Matcher applies its strategies in order and stops at the first hit:
// thread id, then subject token, then In-Reply-To.
type Matcher struct {
	strategies []strategy
}

// NewMatcher returns the standard three-tier matcher.
func NewMatcher() *Matcher {
	return &Matcher{strategies: []strategy{
		{StrategyThread, byThread},
		{StrategySubject, bySubject},
		{StrategyReplyHeader, byReplyHeader},
	}}
}

// Match returns the RFI e answers and the winning strategy. (nil, "", nil)
// means no strategy matched.
func (m *Matcher) Match(ctx context.Context, l RFILookup, e *mailparse.Email) (*domain.RFI, MatchStrategy, error) {
	if e == nil {
		return nil, "", nil
	}
	for _, s := range m.strategies {
		r, err := s.find(ctx, l, e)
		if err != nil {
			return nil, "", err
		}
		if r != nil {
			return r, s.name, nil
		}
	}
	return nil, "", nil
}
