package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careclaim/claimledger/internal/domain"
	"github.com/careclaim/claimledger/internal/ledger"
	"github.com/careclaim/claimledger/internal/store"
)

// --- fakeGateway ---

var _ store.Gateway = (*fakeGateway)(nil)

// fakeGateway is an in-memory Gateway. Reads hand out deep copies so engine
// mutations never leak into "storage" before a write, which is what lets the
// atomicity tests read back pristine state after ledger failures.
type fakeGateway struct {
	mu        sync.Mutex
	claims    map[uuid.UUID]*domain.Claim
	timeline  map[uuid.UUID][]domain.TimelineEntry
	documents map[uuid.UUID]domain.Document

	ApplyTransitionErr error
	CreateDocumentErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		claims:    make(map[uuid.UUID]*domain.Claim),
		timeline:  make(map[uuid.UUID][]domain.TimelineEntry),
		documents: make(map[uuid.UUID]domain.Document),
	}
}

func copyClaim(c *domain.Claim) *domain.Claim {
	out := *c
	if c.Anchor != nil {
		a := *c.Anchor
		out.Anchor = &a
	}
	if c.Ack != nil {
		ack := *c.Ack
		if c.Ack.File != nil {
			f := *c.Ack.File
			ack.File = &f
		}
		out.Ack = &ack
	}
	return &out
}

func (g *fakeGateway) CreateClaim(_ context.Context, c *domain.Claim) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.claims[c.ID]; ok {
		return fmt.Errorf("duplicate claim %s", c.ID)
	}
	g.claims[c.ID] = copyClaim(c)
	return nil
}

func (g *fakeGateway) GetClaim(_ context.Context, id uuid.UUID) (*domain.Claim, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.claims[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyClaim(c), nil
}

func (g *fakeGateway) ListClaims(_ context.Context, ownerID uuid.UUID) ([]domain.Claim, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Claim
	for _, c := range g.claims {
		if c.OwnerID == ownerID {
			out = append(out, *copyClaim(c))
		}
	}
	return out, nil
}

func (g *fakeGateway) UpdateDraft(_ context.Context, c *domain.Claim, expectedUpdatedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.claims[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return store.ErrStaleUpdate
	}
	g.claims[c.ID] = copyClaim(c)
	return nil
}

func (g *fakeGateway) ApplyTransition(_ context.Context, c *domain.Claim, expectedUpdatedAt time.Time, entry *domain.TimelineEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ApplyTransitionErr != nil {
		return g.ApplyTransitionErr
	}
	stored, ok := g.claims[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return store.ErrStaleUpdate
	}
	g.claims[c.ID] = copyClaim(c)
	g.timeline[c.ID] = append(g.timeline[c.ID], *entry)
	return nil
}

func (g *fakeGateway) CreateDocument(_ context.Context, doc *domain.Document, entry *domain.TimelineEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateDocumentErr != nil {
		return g.CreateDocumentErr
	}
	g.documents[doc.ID] = *doc
	g.timeline[doc.ClaimID] = append(g.timeline[doc.ClaimID], *entry)
	return nil
}

func (g *fakeGateway) ListTimeline(_ context.Context, claimID uuid.UUID) ([]domain.TimelineEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.TimelineEntry(nil), g.timeline[claimID]...), nil
}

// seed installs a claim directly, bypassing the engine, for tests that need
// a claim already deep in its lifecycle.
func (g *fakeGateway) seed(c *domain.Claim, entries ...domain.TimelineEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims[c.ID] = copyClaim(c)
	g.timeline[c.ID] = append(g.timeline[c.ID], entries...)
}

// --- fakeLedger ---

var _ ledger.Client = (*fakeLedger)(nil)

type anchorCall struct {
	Op          string
	ClaimKey    string
	StatusCode  uint8
	ContentHash string
}

type fakeLedger struct {
	mu    sync.Mutex
	calls []anchorCall
	seq   int

	CreateClaimFunc  func(ctx context.Context, claimKey, contentFP string) (ledger.TxRef, error)
	UpdateStatusFunc func(ctx context.Context, claimKey string, statusCode uint8, contentFP string) (ledger.TxRef, error)
}

func (f *fakeLedger) CreateClaim(ctx context.Context, claimKey, contentFP string) (ledger.TxRef, error) {
	if f.CreateClaimFunc != nil {
		return f.CreateClaimFunc(ctx, claimKey, contentFP)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.calls = append(f.calls, anchorCall{Op: "create_claim", ClaimKey: claimKey, ContentHash: contentFP})
	return ledger.TxRef(fmt.Sprintf("0xtx%04d", f.seq)), nil
}

func (f *fakeLedger) UpdateStatus(ctx context.Context, claimKey string, statusCode uint8, contentFP string) (ledger.TxRef, error) {
	if f.UpdateStatusFunc != nil {
		return f.UpdateStatusFunc(ctx, claimKey, statusCode, contentFP)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.calls = append(f.calls, anchorCall{Op: "update_status", ClaimKey: claimKey, StatusCode: statusCode, ContentHash: contentFP})
	return ledger.TxRef(fmt.Sprintf("0xtx%04d", f.seq)), nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) lastCall() anchorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// --- test clock ---

// testClock hands out strictly increasing instants so timeline ordering and
// timestamp-salted fingerprints are deterministic but distinct.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}
