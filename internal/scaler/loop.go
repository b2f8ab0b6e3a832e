package scaler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ClusterStateAuthority is the cluster-state authority's boundary contract.
// Concrete implementations live in internal/clusterstate.
type ClusterStateAuthority interface {
	GetClusterUsage(ctx context.Context, clusterID ClusterID) (UsageResponse, error)
	GetClusterIdleInstances(ctx context.Context, req IdleInstancesRequest) (IdleInstancesResponse, error)
}

// IdleInstancesRequest is the outbound request half of
// GetClusterIdleInstances.
type IdleInstancesRequest struct {
	ClusterID         ClusterID
	SkuID             SkuID
	MachineDefinition MachineDefinition
	DesireSize        int
	MaxInstanceCount  int
}

// Provisioner is the provisioner's boundary contract, fire-and-forget from
// this layer. Concrete implementations live in internal/provisioner.
type Provisioner interface {
	Scale(ctx context.Context, req ScaleRequest) error
}

// tick is the private signal carried over a time.Ticker's channel; the two
// timers are disambiguated by which channel delivered it.
type tick struct{}

// ruleFetchCompleted carries a completed (or failed) rule-storage fetch
// back into the inbox, mirroring the source's RuleFetchCompleted message.
type ruleFetchCompleted struct {
	specs map[SkuID]ScaleSpec
	err   error
}

// usageReply carries a completed (or failed) GetClusterUsage call back
// into the inbox.
type usageReply struct {
	resp UsageResponse
	err  error
}

// idleInstancesReply carries a completed (or failed) GetClusterIdleInstances
// call back into the inbox, tagged with the ClusterID of the decision that
// triggered it. The eventual ScaleRequest takes its SkuID and desireSize
// from the response itself, which echoes the request it answers.
type idleInstancesReply struct {
	clusterID ClusterID
	resp      IdleInstancesResponse
	err       error
}

// ruleSetQuery is an external read of the RuleRegistry snapshot, submitted
// from outside the inbox (e.g. an HTTP handler) and answered over reply.
type ruleSetQuery struct {
	reply chan map[SkuID]ScaleSpec
}

// Loop is the ScalerLoop: the serialized event handler and timer owner.
// All registry mutation and decision dispatch happens on the single
// goroutine that drains inbox; every other method is safe to call
// concurrently because it only ever posts to that channel.
type Loop struct {
	cfg       Config
	authority ClusterStateAuthority
	provFn    Provisioner
	loader    *RuleLoader
	metrics   *Metrics

	registry *RuleRegistry
	inbox    chan any

	fetchInFlight bool
}

// NewLoop wires a ScalerLoop for one cluster against its three
// collaborators. The loop does not start its timers until Start is called.
func NewLoop(cfg Config, authority ClusterStateAuthority, prov Provisioner, loader *RuleLoader, metrics *Metrics) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Loop{
		cfg:       cfg,
		authority: authority,
		provFn:    prov,
		loader:    loader,
		metrics:   metrics,
		registry:  NewRuleRegistry(),
		inbox:     make(chan any, 64),
	}
}

// Start runs the inbox loop until ctx is canceled. It owns both periodic
// timers (usage-pull and rule-refresh) and must be run in its own
// goroutine; Start blocks until ctx.Done() fires, then cancels both timers,
// drains no in-flight replies, and returns.
func (l *Loop) Start(ctx context.Context) {
	usageTicker := time.NewTicker(l.cfg.ScalerPullThreshold)
	defer usageTicker.Stop()
	ruleTicker := time.NewTicker(l.cfg.RuleSetRefreshThreshold)
	defer ruleTicker.Stop()

	l.TriggerRuleFetch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-usageTicker.C:
			l.handleEvent(ctx, tick{})
		case <-ruleTicker.C:
			l.TriggerRuleFetch(ctx)
		case ev := <-l.inbox:
			l.handleEvent(ctx, ev)
		}
	}
}

// RuleSetSnapshot asks the loop for its current RuleRegistry snapshot,
// mirroring the source's GetRuleSetRequest/GetRuleSetResponse round trip.
// It is safe to call from any goroutine.
func (l *Loop) RuleSetSnapshot(ctx context.Context) (map[SkuID]ScaleSpec, error) {
	reply := make(chan map[SkuID]ScaleSpec, 1)
	select {
	case l.inbox <- ruleSetQuery{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TriggerRuleFetch issues a storage fetch in the background and posts its
// result to the inbox as ruleFetchCompleted, unless a fetch is already in
// flight, so out-of-order concurrent fetches can't race each other: at most
// one fetch runs at a time. It is safe to call from any goroutine,
// including an HTTP handler asking for an out-of-band refresh.
func (l *Loop) TriggerRuleFetch(ctx context.Context) {
	select {
	case l.inbox <- startRuleFetch{}:
	case <-ctx.Done():
	}
}

// startRuleFetch is a private inbox event meaning "begin a rule fetch if
// none is already running". It is distinct from ruleFetchCompleted so the
// in-flight flag can only ever be touched inside handleEvent.
type startRuleFetch struct{}

// handleEvent dispatches one inbox/timer event. A handler that would panic
// is recovered here so one bad event cannot corrupt the inbox for the rest
// of this cluster's events.
func (l *Loop) handleEvent(ctx context.Context, ev any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("clusterId", string(l.cfg.ClusterID)).
				Interface("panic", r).
				Msg("scaler loop handler panicked, event dropped")
		}
	}()

	switch e := ev.(type) {
	case tick:
		l.onTickUsage(ctx)
	case startRuleFetch:
		l.onStartRuleFetch(ctx)
	case ruleFetchCompleted:
		l.onRuleFetchCompleted(e)
	case usageReply:
		l.onUsageReply(ctx, e)
	case idleInstancesReply:
		l.onIdleInstancesReply(ctx, e)
	case ruleSetQuery:
		e.reply <- l.registry.Snapshot()
	default:
		log.Error().Str("clusterId", string(l.cfg.ClusterID)).
			Msgf("unknown inbox event type %T", ev)
	}
}

func (l *Loop) onTickUsage(ctx context.Context) {
	if l.registry.Len() == 0 {
		log.Debug().Str("clusterId", string(l.cfg.ClusterID)).
			Msg("scaler implicitly disabled, no rules loaded")
		return
	}
	go func() {
		resp, err := l.authority.GetClusterUsage(ctx, l.cfg.ClusterID)
		select {
		case l.inbox <- usageReply{resp: resp, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Loop) onStartRuleFetch(ctx context.Context) {
	if l.fetchInFlight {
		log.Debug().Str("clusterId", string(l.cfg.ClusterID)).
			Msg("rule fetch already in flight, skipping")
		return
	}
	l.fetchInFlight = true
	go func() {
		specs, err := l.loader.Fetch(ctx, l.cfg.ClusterID)
		select {
		case l.inbox <- ruleFetchCompleted{specs: specs, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Loop) onRuleFetchCompleted(e ruleFetchCompleted) {
	l.fetchInFlight = false
	if e.err != nil {
		log.Warn().Err(e.err).Str("clusterId", string(l.cfg.ClusterID)).
			Msg("rule fetch failed, retaining existing registry")
		return
	}
	l.registry.Replace(e.specs, l.cfg.Clock)
	log.Info().Str("clusterId", string(l.cfg.ClusterID)).
		Int("count", len(e.specs)).Msg("refreshed rule set")
}

func (l *Loop) onUsageReply(ctx context.Context, e usageReply) {
	if e.err != nil {
		log.Warn().Err(e.err).Str("clusterId", string(l.cfg.ClusterID)).
			Msg("usage pull failed, next tick will retry")
		return
	}

	l.metrics.IncScaleRuleTrigger()

	for _, usage := range e.resp.Usages {
		if usage.Def.Empty() {
			log.Debug().Str("clusterId", string(l.cfg.ClusterID)).
				Msg("legacy usage entry with no machine definition, ignored")
			continue
		}

		rule, ok := l.registry.Get(usage.Def.DefinitionID)
		if !ok {
			log.Info().Str("clusterId", string(l.cfg.ClusterID)).
				Str("skuId", string(usage.Def.DefinitionID)).
				Msg("no rule available for sku")
			continue
		}

		decision, ok := rule.Apply(usage)
		if !ok {
			continue
		}
		l.dispatchDecision(ctx, decision, usage)
	}
}

func (l *Loop) dispatchDecision(ctx context.Context, decision ScaleDecision, usage UsageByMachineDefinition) {
	switch decision.Type {
	case ScaleUp:
		l.metrics.IncScaleUp()
		req := ScaleRequest{
			ClusterID:  decision.ClusterID,
			SkuID:      decision.SkuID,
			DesireSize: decision.DesireSize,
		}
		l.sendToProvisioner(ctx, req)

	case ScaleDown:
		l.metrics.IncScaleDown()
		idleReq := IdleInstancesRequest{
			ClusterID:         decision.ClusterID,
			SkuID:             decision.SkuID,
			MachineDefinition: usage.Def,
			DesireSize:        decision.DesireSize,
			MaxInstanceCount:  max(usage.TotalCount-decision.DesireSize, 0),
		}
		go func() {
			resp, err := l.authority.GetClusterIdleInstances(ctx, idleReq)
			select {
			case l.inbox <- idleInstancesReply{clusterID: decision.ClusterID, resp: resp, err: err}:
			case <-ctx.Done():
			}
		}()

	case NoOpReachMax:
		l.metrics.IncReachScaleMaxLimit()

	case NoOpReachMin:
		l.metrics.IncReachScaleMinLimit()

	default:
		log.Error().Str("clusterId", string(l.cfg.ClusterID)).
			Str("skuId", string(decision.SkuID)).
			Msgf("internal invariant violation: unknown scale type %q", decision.Type)
	}
}

func (l *Loop) onIdleInstancesReply(ctx context.Context, e idleInstancesReply) {
	if e.err != nil {
		log.Warn().Err(e.err).Str("clusterId", string(l.cfg.ClusterID)).
			Msg("idle instance lookup failed, scale-down dropped for this tick")
		return
	}
	req := ScaleRequest{
		ClusterID:     e.clusterID,
		SkuID:         e.resp.SkuID,
		DesireSize:    e.resp.DesireSize,
		IdleInstances: e.resp.Instances,
	}
	l.sendToProvisioner(ctx, req)
}

// sendToProvisioner fires a Scale call on its own goroutine rather than
// blocking the handler that calls it. The provisioner boundary is
// fire-and-forget from the loop's perspective, and a slow or retrying
// Scale call (the Pulumi-backed Provisioner retries on conflict with
// exponential backoff) must never stall the inbox for every other SKU on
// this cluster while it runs.
func (l *Loop) sendToProvisioner(ctx context.Context, req ScaleRequest) {
	go func() {
		if err := l.provFn.Scale(ctx, req); err != nil {
			log.Warn().Err(err).Str("clusterId", string(req.ClusterID)).
				Str("skuId", string(req.SkuID)).Msg("provisioner request failed")
		}
	}()
}
