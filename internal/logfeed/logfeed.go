// Package logfeed exposes build log entries as a paginated, filterable feed.
//
// Renderers read an immutable Snapshot and drive the feed through commands.
// Navigation is atomic: the page number and the fetching flag change
// together, and the fetched entries land together with the page count.
package logfeed

import (
	"context"
	"sync"
	"time"
)

const DefaultPageSize = 20

type Entry struct {
	ID      int64     `json:"id"`
	BuildID string    `json:"buildId"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

type Filter struct {
	BuildID string   `json:"buildId,omitempty"`
	Kinds   []string `json:"kinds,omitempty"`
	Levels  []string `json:"levels,omitempty"`
	Search  string   `json:"search,omitempty"`
}

type Query struct {
	Page     int
	PageSize int
	Filter   Filter
}

type Result struct {
	Entries []Entry
	Pages   int
}

type Source interface {
	Fetch(ctx context.Context, query Query) (Result, error)
}

type Snapshot struct {
	Entries     []Entry `json:"entries"`
	CurrentPage int     `json:"currentPage"`
	Pages       int     `json:"pages"`
	IsFetching  bool    `json:"isFetching"`
	Detailed    *Entry  `json:"detailed,omitempty"`
	Filter      Filter  `json:"filter"`
	Error       string  `json:"error,omitempty"`
}

type Feed struct {
	mu          sync.Mutex
	source      Source
	pageSize    int
	state       Snapshot
	seq         uint64
	settled     view
	subscribers map[chan Snapshot]struct{}
}

func New(source Source, pageSize int) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Feed{
		source:      source,
		pageSize:    pageSize,
		state:       Snapshot{CurrentPage: 1},
		settled:     view{page: 1},
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	s := f.state
	s.Entries = append([]Entry(nil), f.state.Entries...)
	s.Filter.Kinds = append([]string(nil), f.state.Filter.Kinds...)
	s.Filter.Levels = append([]string(nil), f.state.Filter.Levels...)
	if f.state.Detailed != nil {
		detailed := *f.state.Detailed
		s.Detailed = &detailed
	}

	return s
}

// Subscribe returns a channel receiving every new snapshot. Slow consumers
// only see the latest one.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
	}
}

func (f *Feed) publishLocked() {
	if len(f.subscribers) == 0 {
		return
	}

	s := f.snapshotLocked()
	for ch := range f.subscribers {
		select {
		case <-ch:
		default:
		}

		ch <- s
	}
}

// ChangePage navigates to page and fetches its entries.
func (f *Feed) ChangePage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}

	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.state.CurrentPage = page
	f.state.IsFetching = true
	filter := f.state.Filter
	f.publishLocked()
	f.mu.Unlock()

	return f.fetch(ctx, seq, page, filter)
}

// SetFilter replaces the filter and goes back to the first page.
func (f *Feed) SetFilter(ctx context.Context, filter Filter) error {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.state.Filter = filter
	f.state.CurrentPage = 1
	f.state.IsFetching = true
	f.state.Detailed = nil
	f.publishLocked()
	f.mu.Unlock()

	return f.fetch(ctx, seq, 1, filter)
}

// Refresh fetches the current page again.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	page := f.state.CurrentPage
	f.mu.Unlock()

	return f.ChangePage(ctx, page)
}

func (f *Feed) SetDetailedView(entry *Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry == nil {
		f.state.Detailed = nil
	} else {
		detailed := *entry
		f.state.Detailed = &detailed
	}

	f.publishLocked()
}

// view is the page and filter the current entries were fetched for.
type view struct {
	page   int
	filter Filter
}

// fetch loads page for filter. On failure the state goes back to the last
// settled view so the page number keeps matching the entries on display.
func (f *Feed) fetch(ctx context.Context, seq uint64, page int, filter Filter) error {
	res, err := f.source.Fetch(ctx, Query{Page: page, PageSize: f.pageSize, Filter: filter})
	if err == nil && res.Pages > 0 && page > res.Pages {
		page = res.Pages
		res, err = f.source.Fetch(ctx, Query{Page: page, PageSize: f.pageSize, Filter: filter})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// a newer command owns the state
	if seq != f.seq {
		return err
	}

	f.state.IsFetching = false
	if err != nil {
		f.state.CurrentPage = f.settled.page
		f.state.Filter = f.settled.filter
		f.state.Error = err.Error()
		f.publishLocked()
		return err
	}

	if res.Pages == 0 {
		page = 1
	}

	f.settled = view{page: page, filter: filter}
	f.state.Error = ""
	f.state.Entries = res.Entries
	f.state.Pages = res.Pages
	f.state.CurrentPage = page
	f.publishLocked()

	return nil
}
