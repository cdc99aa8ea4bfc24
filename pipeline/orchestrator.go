/*
Package pipeline coordinates one forecasting batch end to end.

PURPOSE:
  The orchestrator walks every site through a fixed progression:

    loaded -> features computed -> decided -> justified (or degraded)

  Features and decisions are deterministic and cheap, so they run
  sequentially in input order. Justification calls are slow and
  rate-limited, so they fan out with a bounded worker group, routed
  selectively to high-signal sites, and stop for the rest of the run
  once the consecutive-failure budget trips.

FAILURE ISOLATION:
  - A site with a data-quality problem is reported with an error marker;
    no other site is affected.
  - A failed justification degrades only its own report; the rules
    decision always ships.
  - The only fatal paths are an empty site registry and structural
    validation failures raised by the dataset loader before Run starts.

SEE ALSO:
  - gemini/client.go: the Justifier implementation used in production
  - supply/rules.go: the authoritative decision policy
*/
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/supply-engine/dataset"
	"github.com/warp/supply-engine/gemini"
	"github.com/warp/supply-engine/supply"
)

// Justifier produces an advisory justification for one site's decision.
// The production implementation is *gemini.Client; tests inject fakes.
type Justifier interface {
	Justify(ctx context.Context, req gemini.Request) (supply.Justification, error)
}

// Depots optionally describes depot stock for allocation planning. When
// nil, the batch summary carries no depot section.
type Depots struct {
	Inventory map[string]int
	LeadTimes map[string]map[supply.SiteID]int
}

// Orchestrator runs forecasting batches. Safe for concurrent use; all
// per-batch state lives inside Run.
type Orchestrator struct {
	cfg       supply.Config
	justifier Justifier
	log       *zap.Logger

	// Depots enables depot allocation planning when set.
	Depots *Depots

	newSessionID func() string
}

// New builds an Orchestrator. justifier may be nil: every report then
// ships with a null llm object, which is also how an empty credential
// pool behaves.
func New(cfg supply.Config, justifier Justifier, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:          cfg,
		justifier:    justifier,
		log:          log,
		newSessionID: uuid.NewString,
	}
}

// siteState tracks one site's progression through the batch.
type siteState struct {
	report   supply.SiteReport
	features supply.SiteFeatures
	decision supply.ResupplyDecision
	decided  bool
	just     *supply.Justification
}

// Run executes one batch against the given dataset. referenceDate
// anchors all date arithmetic; results preserve the input site order.
func (o *Orchestrator) Run(ctx context.Context, ds *dataset.Dataset, referenceDate time.Time) (*supply.BatchReport, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(ds.Sites) == 0 {
		return nil, supply.ErrNoSites
	}
	if d := o.cfg.BatchDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	sessionID := o.newSessionID()
	log := o.log.With(zap.String("session_id", sessionID))
	log.Info("batch started",
		zap.Int("sites", len(ds.Sites)),
		zap.Time("reference_date", referenceDate))

	states := o.decideAll(ds, referenceDate, log)

	if o.justifier != nil {
		o.justifyAll(ctx, states, log)
	}

	waste := supply.AnalyzeWaste(ds.AllWaste(), ds.AllDispense())
	excursions := supply.DetectExcursions(ds.AllShipments(), ds.AllWaste())

	results := make([]supply.SiteReport, 0, len(states))
	for _, st := range states {
		st.finalize(waste, excursions)
		results = append(results, st.report)
	}

	summary := buildSummary(states, waste, excursions)
	if plan := o.planDepots(states); plan != nil {
		summary.Depot = plan.Summarize()
	}

	log.Info("batch finished",
		zap.Int("resupply_sites", summary.SitesNeedingResupply),
		zap.Int("error_sites", summary.ErrorSites),
		zap.Int("llm_sites", summary.LLMSites))

	return &supply.BatchReport{
		SessionID: sessionID,
		Results:   results,
		Summary:   summary,
	}, nil
}

// decideAll runs the deterministic half of the batch: features then the
// rules decision, per site, in input order. Per-site failures land on
// that site's report only.
func (o *Orchestrator) decideAll(ds *dataset.Dataset, referenceDate time.Time, log *zap.Logger) []*siteState {
	states := make([]*siteState, 0, len(ds.Sites))
	for _, site := range ds.Sites {
		st := &siteState{report: supply.SiteReport{
			SiteID:   site.ID,
			SiteName: site.Name,
			Region:   site.Region,
		}}
		if st.report.SiteName == "" {
			st.report.SiteName = string(site.ID)
		}
		states = append(states, st)

		if issue := ds.Issues[site.ID]; issue != nil {
			st.report.Error = issue.Error()
			log.Warn("site skipped on load issue",
				zap.String("site_id", string(site.ID)),
				zap.String("issue", issue.Error()))
			continue
		}

		f, err := supply.ComputeFeatures(site,
			ds.Dispense[site.ID], ds.Inventory[site.ID], ds.Enrollment[site.ID],
			o.cfg, referenceDate)
		if err != nil {
			st.report.Error = err.Error()
			var dq *supply.DataQualityError
			if !errors.As(err, &dq) {
				log.Error("unexpected feature failure",
					zap.String("site_id", string(site.ID)), zap.Error(err))
			}
			continue
		}

		st.features = f
		st.decision = supply.Decide(f, o.cfg)
		st.decided = true

		st.report.Projected30dDemand = f.Projected30dDemand.InexactFloat64()
		st.report.CurrentInventory = f.CurrentInventory
		st.report.WeeklyDispenseKits = f.WeeklyDispenseKits.InexactFloat64()
		st.report.DaysToExpiry = f.DaysToExpiry
		st.report.UrgencyScore = f.UrgencyScore.InexactFloat64()
		st.report.Predicted30dEnrollment = f.Predicted30dEnrollment
		st.report.EnrollmentTrend = f.EnrollmentTrend
		st.report.ScreenFailRate = f.ScreenFailRate.InexactFloat64()
		st.report.Action = st.decision.Action
		st.report.Quantity = st.decision.Quantity
		st.report.Reason = st.decision.Reason
	}
	return states
}

// justifyAll fans justification calls out over the decided sites with a
// bounded worker group. Selective routing keeps the call volume on the
// sites where a narrative actually matters.
func (o *Orchestrator) justifyAll(ctx context.Context, states []*siteState, log *zap.Logger) {
	netCtx := networkContext(states)
	budget := newFailureBudget(o.cfg.MaxLLMFailures)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrent)
	for _, st := range states {
		if !st.decided || !o.routeToLLM(st.features) {
			continue
		}
		st := st
		g.Go(func() error {
			if !budget.allow() {
				log.Debug("justification budget tripped, skipping",
					zap.String("site_id", string(st.report.SiteID)))
				return nil
			}
			j, err := o.justifier.Justify(ctx, gemini.Request{
				Features: st.features,
				Decision: st.decision,
				Context:  netCtx,
			})
			st.just = &j
			if err != nil {
				budget.failure()
				log.Warn("justification degraded",
					zap.String("site_id", string(st.report.SiteID)),
					zap.Error(err))
			} else {
				budget.success()
			}
			return nil
		})
	}
	g.Wait() // workers never return errors; isolation is per-site
}

// routeToLLM decides whether a site is worth a justification call.
func (o *Orchestrator) routeToLLM(f supply.SiteFeatures) bool {
	if !o.cfg.SelectiveLLM {
		return true
	}
	if f.UrgencyScore.GreaterThanOrEqual(decimal.NewFromFloat(o.cfg.LLMPriorityThreshold)) {
		return true
	}
	if f.DaysToExpiry != nil && *f.DaysToExpiry <= o.cfg.LLMExpiryThresholdDays {
		return true
	}
	return f.Projected30dDemand.GreaterThan(decimal.NewFromInt(int64(f.CurrentInventory)))
}

// finalize merges justification and auxiliary analyses into the report.
func (st *siteState) finalize(waste *supply.WasteAnalysis, excursions map[supply.SiteID]*supply.SiteExcursions) {
	if st.just != nil {
		st.report.LatencyMS = st.just.LatencyMS
		if !st.just.Failed {
			st.report.LLM = &supply.LLMReport{
				Structured:   st.just.Structured,
				DraftMessage: st.just.DraftMessage,
			}
		}
	}
	if st.report.Error != "" {
		return
	}
	st.report.WasteData = waste.BySite[st.report.SiteID]
	st.report.TempExcursions = excursions[st.report.SiteID]
}

// planDepots allocates depot stock against the batch's resupply
// quantities when depot data was provided.
func (o *Orchestrator) planDepots(states []*siteState) *supply.DepotPlan {
	if o.Depots == nil {
		return nil
	}
	demands := make(map[supply.SiteID]int)
	siteInv := make(map[supply.SiteID]int)
	for _, st := range states {
		if !st.decided || st.decision.Action != supply.ActionResupply {
			continue
		}
		demands[st.report.SiteID] = st.decision.Quantity + st.features.CurrentInventory
		siteInv[st.report.SiteID] = st.features.CurrentInventory
	}
	if len(demands) == 0 {
		return nil
	}
	return supply.AllocateFromDepots(demands, o.Depots.Inventory, siteInv, o.Depots.LeadTimes)
}

// networkContext aggregates batch-level stats over the decided sites so
// the model can place one site relative to its peers.
func networkContext(states []*siteState) *gemini.NetworkContext {
	var (
		n         int
		inventory float64
		demand    float64
		urgency   float64
	)
	for _, st := range states {
		if !st.decided {
			continue
		}
		n++
		inventory += float64(st.features.CurrentInventory)
		demand += st.features.Projected30dDemand.InexactFloat64()
		urgency += st.features.UrgencyScore.InexactFloat64()
	}
	if n == 0 {
		return nil
	}
	return &gemini.NetworkContext{
		TotalSites:   n,
		AvgInventory: inventory / float64(n),
		AvgDemand:    demand / float64(n),
		AvgUrgency:   urgency / float64(n),
	}
}

// failureBudget trips after a run of consecutive justification failures
// and stays tripped for the rest of the batch. A zero or negative limit
// disables it.
type failureBudget struct {
	mu          sync.Mutex
	limit       int
	consecutive int
	tripped     bool
}

func newFailureBudget(limit int) *failureBudget {
	return &failureBudget{limit: limit}
}

func (b *failureBudget) allow() bool {
	if b.limit <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped
}

func (b *failureBudget) failure() {
	if b.limit <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.consecutive >= b.limit {
		b.tripped = true
	}
}

func (b *failureBudget) success() {
	if b.limit <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}
