package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/credential-service/internal/domain"
)

type counterKey struct {
	benefitID string
	holderDID string
	period    string
}

// UsageLog counts check-ins under a single mutex so batches apply atomically.
type UsageLog struct {
	mu       sync.Mutex
	counters map[counterKey]int
	events   []domain.CheckInEvent
}

// NewUsageLog builds an empty log.
func NewUsageLog() *UsageLog {
	return &UsageLog{counters: make(map[counterKey]int)}
}

func (l *UsageLog) CountThisMonth(_ context.Context, benefitID, holderDID, period string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[counterKey{benefitID, holderDID, period}], nil
}

func (l *UsageLog) Record(ctx context.Context, rec domain.UsageRecord) (int, error) {
	counts, err := l.RecordCheckIns(ctx, []domain.UsageRecord{rec})
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

func (l *UsageLog) RecordCheckIns(_ context.Context, recs []domain.UsageRecord) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := make(map[counterKey]int, len(recs))
	counts := make([]int, len(recs))
	for i, rec := range recs {
		key := counterKey{rec.Event.BenefitID, rec.Event.HolderDID, rec.Event.Period}
		current, ok := pending[key]
		if !ok {
			current = l.counters[key]
		}
		if rec.Cap > 0 && current >= rec.Cap {
			return nil, domain.ErrUsageExceeded
		}
		pending[key] = current + 1
		counts[i] = current + 1
	}

	for key, count := range pending {
		l.counters[key] = count
	}
	for _, rec := range recs {
		l.events = append(l.events, rec.Event)
	}
	return counts, nil
}

// Events returns a copy of every recorded check-in.
func (l *UsageLog) Events() []domain.CheckInEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CheckInEvent(nil), l.events...)
}
