package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BadgersMC/LumalyteSRV/internal/model"
	"github.com/BadgersMC/LumalyteSRV/internal/repository"
)

// ----- Fake store -----

// fakeStore mimics the repository semantics in memory, including the
// atomic delete-on-consume that makes redemption at-most-once.
type fakeStore struct {
	mu       sync.Mutex
	pending  map[string]model.PendingLink // keyed by discord id
	links    map[string]string            // uuid -> discord id
	verified map[string]bool
	failing  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:  make(map[string]model.PendingLink),
		links:    make(map[string]string),
		verified: make(map[string]bool),
	}
}

var errStoreDown = errors.New("store down")

func (f *fakeStore) SavePendingCode(ctx context.Context, discordID, code string, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, errStoreDown
	}
	for id, p := range f.pending {
		if p.Code == code && p.CreatedAt.Before(cutoff) {
			delete(f.pending, id)
		}
	}
	for id, p := range f.pending {
		if id != discordID && p.Code == code {
			return false, nil
		}
	}
	f.pending[discordID] = model.PendingLink{DiscordID: discordID, Code: code, CreatedAt: time.Now()}
	return true, nil
}

func (f *fakeStore) Redeem(ctx context.Context, uuid, code string, cutoff time.Time) (repository.RedeemOutcome, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, "", errStoreDown
	}
	if _, ok := f.links[uuid]; ok {
		return repository.RedeemAlreadyLinked, "", nil
	}
	for id, p := range f.pending {
		if p.Code == code && !p.CreatedAt.Before(cutoff) {
			delete(f.pending, id)
			f.links[uuid] = id
			f.verified[id] = true
			return repository.RedeemLinked, id, nil
		}
	}
	for id, p := range f.pending {
		if p.Code == code && p.CreatedAt.Before(cutoff) {
			delete(f.pending, id)
			return repository.RedeemExpired, "", nil
		}
	}
	return repository.RedeemInvalid, "", nil
}

func (f *fakeStore) Unlink(ctx context.Context, uuid string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, "", errStoreDown
	}
	discordID, ok := f.links[uuid]
	if !ok {
		return false, "", nil
	}
	delete(f.links, uuid)
	delete(f.verified, discordID)
	return true, discordID, nil
}

func (f *fakeStore) OwnerOf(ctx context.Context, uuid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errStoreDown
	}
	return f.links[uuid], nil
}

func (f *fakeStore) CountLinks(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links), nil
}

func (f *fakeStore) CountPending(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.pending {
		if !p.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) setPending(discordID, code string, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[discordID] = model.PendingLink{DiscordID: discordID, Code: code, CreatedAt: createdAt}
}

func (f *fakeStore) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeStore) codeFor(discordID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[discordID].Code
}

// ----- Fake role sync -----

type fakeRoles struct {
	mu       sync.Mutex
	linked   []string
	unlinked []string
}

func (r *fakeRoles) OnLinked(discordID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linked = append(r.linked, discordID)
}

func (r *fakeRoles) OnUnlinked(discordID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlinked = append(r.unlinked, discordID)
}

// ----- Tests -----

func newTestService(store LinkStore) *LinkService {
	svc := NewLinkService(store)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestIssueCode(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	code, err := svc.IssueCode(context.Background(), "111")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q is not 6 digits", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100000 || n > 999999 {
		t.Fatalf("code %q outside [100000, 999999]", code)
	}
	if store.pendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", store.pendingCount())
	}

	// A second issue for the same owner replaces the first code.
	code2, err := svc.IssueCode(context.Background(), "111")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if store.pendingCount() != 1 {
		t.Fatalf("pending count = %d after reissue, want 1", store.pendingCount())
	}
	if store.codeFor("111") != code2 {
		t.Fatalf("pending code = %q, want reissued %q", store.codeFor("111"), code2)
	}
}

func TestIssueCodeRetriesOnCollision(t *testing.T) {
	store := newFakeStore()
	store.setPending("999", "111111", time.Now())

	svc := newTestService(store)
	codes := []string{"111111", "111111", "222222"}
	svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	code, err := svc.IssueCode(context.Background(), "111")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if code != "222222" {
		t.Fatalf("code = %q, want 222222", code)
	}
}

func TestIssueCodeExhaustsRetryBound(t *testing.T) {
	store := newFakeStore()
	store.setPending("999", "111111", time.Now())

	svc := newTestService(store)
	calls := 0
	svc.newCode = func() (string, error) {
		calls++
		return "111111", nil
	}

	_, err := svc.IssueCode(context.Background(), "111")
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("err = %v, want ErrCodeSpaceExhausted", err)
	}
	if calls != 10 {
		t.Fatalf("generation attempts = %d, want 10", calls)
	}
}

func TestIssueCodeConcurrentDuplicateDraw(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// Both issuers draw the same code first; the store accepts it exactly
	// once, so the loser retries with the next draw.
	var mu sync.Mutex
	draws := []string{"555555", "555555", "666666"}
	svc.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := draws[0]
		draws = draws[1:]
		return c, nil
	}

	codes := make(chan string, 2)
	var wg sync.WaitGroup
	for _, owner := range []string{"111", "222"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			code, err := svc.IssueCode(context.Background(), owner)
			if err != nil {
				t.Errorf("IssueCode(%s): %v", owner, err)
				return
			}
			codes <- code
		}(owner)
	}
	wg.Wait()
	close(codes)

	issued := make(map[string]bool)
	for code := range codes {
		if issued[code] {
			t.Fatalf("code %q issued to two owners", code)
		}
		issued[code] = true
	}
	if store.codeFor("111") == store.codeFor("222") {
		t.Fatalf("both owners hold code %q", store.codeFor("111"))
	}
}

func TestExpiredCodeBecomesIssuableAgain(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	store.setPending("111", "482913", svc.now().Add(-CodeTTL-time.Second))
	svc.newCode = func() (string, error) { return "482913", nil }

	// The stale holder does not block reissue of the same value.
	code, err := svc.IssueCode(context.Background(), "222")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if code != "482913" {
		t.Fatalf("code = %q, want 482913", code)
	}
	if store.pendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1 after stale eviction", store.pendingCount())
	}

	// The fresh row belongs to the new owner and redeems normally.
	result, err := svc.Link(context.Background(), "abc-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !result.Success || result.DiscordID != "222" {
		t.Fatalf("got %+v, want link to 222", result)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	roles := &fakeRoles{}
	svc.SetRoleSync(roles)

	store.setPending("111", "482913", svc.now())

	result, err := svc.Link(context.Background(), "abc-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !result.Success {
		t.Fatalf("Link failed: %s", result.Message)
	}
	if result.DiscordID != "111" {
		t.Fatalf("DiscordID = %q, want 111", result.DiscordID)
	}
	if owner, _ := store.OwnerOf(context.Background(), "abc-uuid"); owner != "111" {
		t.Fatalf("stored owner = %q, want 111", owner)
	}
	if store.pendingCount() != 0 {
		t.Fatalf("pending code not consumed")
	}
	if len(roles.linked) != 1 || roles.linked[0] != "111" {
		t.Fatalf("role sync not called with linked owner: %v", roles.linked)
	}

	// The consumed code is now unknown, not expired.
	result, err = svc.Link(context.Background(), "other-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if result.Success || result.Message != msgCodeInvalid {
		t.Fatalf("replayed code: got %+v, want invalid", result)
	}
}

func TestLinkAlreadyLinked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	roles := &fakeRoles{}
	svc.SetRoleSync(roles)

	store.links["abc-uuid"] = "111"
	store.setPending("222", "333333", svc.now())

	result, err := svc.Link(context.Background(), "abc-uuid", "333333")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if result.Success || result.Message != msgAlreadyLinked {
		t.Fatalf("got %+v, want already-linked failure", result)
	}
	if store.pendingCount() != 1 {
		t.Fatalf("pending code mutated on failed link")
	}
	if len(roles.linked) != 0 {
		t.Fatalf("role sync called on failed link")
	}
}

func TestLinkExpiredCode(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	store.setPending("111", "482913", svc.now().Add(-CodeTTL-time.Second))

	result, err := svc.Link(context.Background(), "abc-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if result.Success || result.Message != msgCodeExpired {
		t.Fatalf("got %+v, want expired failure", result)
	}
	if store.pendingCount() != 0 {
		t.Fatalf("stale code not removed")
	}

	// The stale row is gone, so the same code now reports invalid.
	result, err = svc.Link(context.Background(), "abc-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if result.Message != msgCodeInvalid {
		t.Fatalf("got %q, want invalid after stale removal", result.Message)
	}
}

func TestLinkCodeFreshAtBoundary(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// Exactly CodeTTL old: still redeemable.
	store.setPending("111", "482913", svc.now().Add(-CodeTTL))

	result, err := svc.Link(context.Background(), "abc-uuid", "482913")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !result.Success {
		t.Fatalf("boundary-age code rejected: %s", result.Message)
	}
}

func TestLinkConcurrentExactlyOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	store.setPending("111", "482913", svc.now())

	const callers = 16
	results := make(chan model.LinkResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Link(context.Background(), "uuid-"+strconv.Itoa(i), "482913")
			if err != nil {
				t.Errorf("Link: %v", err)
				return
			}
			results <- r
		}(i)
	}
	wg.Wait()
	close(results)

	wins, invalid := 0, 0
	for r := range results {
		switch {
		case r.Success:
			wins++
		case r.Message == msgCodeInvalid:
			invalid++
		default:
			t.Errorf("unexpected result %+v", r)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if invalid != callers-1 {
		t.Fatalf("invalid = %d, want %d", invalid, callers-1)
	}
}

func TestUnlinkIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	roles := &fakeRoles{}
	svc.SetRoleSync(roles)

	store.links["abc-uuid"] = "111"
	store.verified["111"] = true

	result, err := svc.Unlink(context.Background(), "abc-uuid")
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if !result.Success || result.DiscordID != "111" {
		t.Fatalf("got %+v, want success with previous owner", result)
	}
	if store.verified["111"] {
		t.Fatalf("verified flag not cleared")
	}
	if len(roles.unlinked) != 1 || roles.unlinked[0] != "111" {
		t.Fatalf("role sync not told to revoke: %v", roles.unlinked)
	}

	// Second unlink is a no-op failure, not an error.
	result, err = svc.Unlink(context.Background(), "abc-uuid")
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if result.Success || result.Message != msgNotLinked {
		t.Fatalf("got %+v, want not-linked failure", result)
	}
	if len(roles.unlinked) != 1 {
		t.Fatalf("role sync called on no-op unlink")
	}
}

func TestUnlinkThenRelink(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	store.links["abc-uuid"] = "111"

	if r, err := svc.Unlink(context.Background(), "abc-uuid"); err != nil || !r.Success {
		t.Fatalf("Unlink: %v %+v", err, r)
	}

	code, err := svc.IssueCode(context.Background(), "222")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	result, err := svc.Link(context.Background(), "abc-uuid", code)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !result.Success || result.DiscordID != "222" {
		t.Fatalf("relink got %+v, want new owner 222", result)
	}
}

func TestStoreFailuresSurfaceAsErrors(t *testing.T) {
	store := newFakeStore()
	store.failing = true
	svc := newTestService(store)

	if _, err := svc.IssueCode(context.Background(), "111"); err == nil {
		t.Fatal("IssueCode: want error when store is down")
	}
	if _, err := svc.Link(context.Background(), "abc-uuid", "482913"); err == nil {
		t.Fatal("Link: want error when store is down")
	}
	if _, err := svc.Unlink(context.Background(), "abc-uuid"); err == nil {
		t.Fatal("Unlink: want error when store is down")
	}
}
