// Package stats composes reporting views over the record store. Nothing is
// cached; every call recomputes from history.
package stats

import (
	"context"
	"fmt"
	"sort"

	"booking-bot/internal/models"
	"booking-bot/internal/store"
)

type Aggregator struct {
	store store.Store
}

func New(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Summary is the admin view.
type Summary struct {
	TotalBookings   int
	TotalRevenue    float64
	MostPopularID   int64
	MostPopularName string
}

// ServiceLine is one row of the owner report.
type ServiceLine struct {
	ServiceID int64
	Name      string
	Bookings  int
	Revenue   float64
}

// Report is the owner view: the summary plus a per-service breakdown sorted
// by bookings, then id.
type Report struct {
	Summary
	Services []ServiceLine
}

func (a *Aggregator) Summary(ctx context.Context, period models.Period) (*Summary, error) {
	st, err := a.store.GetStatistics(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	names, err := a.serviceNames(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(st, names), nil
}

func (a *Aggregator) Report(ctx context.Context, period models.Period) (*Report, error) {
	st, err := a.store.GetStatistics(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	names, err := a.serviceNames(ctx)
	if err != nil {
		return nil, err
	}

	r := &Report{Summary: *summarize(st, names)}
	for id, n := range st.PopularityByService {
		r.Services = append(r.Services, ServiceLine{
			ServiceID: id,
			Name:      nameOf(names, id),
			Bookings:  n,
			Revenue:   st.RevenueByService[id],
		})
	}
	sort.Slice(r.Services, func(i, j int) bool {
		if r.Services[i].Bookings != r.Services[j].Bookings {
			return r.Services[i].Bookings > r.Services[j].Bookings
		}
		return r.Services[i].ServiceID < r.Services[j].ServiceID
	})
	return r, nil
}

func (a *Aggregator) serviceNames(ctx context.Context) (map[int64]string, error) {
	services, err := a.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	names := make(map[int64]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}
	return names, nil
}

func summarize(st *models.Statistics, names map[int64]string) *Summary {
	s := &Summary{
		TotalBookings: st.TotalBookings,
		TotalRevenue:  st.TotalRevenue,
		MostPopularID: st.MostPopularServiceID,
	}
	if st.MostPopularServiceID != 0 {
		s.MostPopularName = nameOf(names, st.MostPopularServiceID)
	}
	return s
}

// nameOf falls back to the id for services deleted since they were booked.
func nameOf(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("#%d (deleted)", id)
}
