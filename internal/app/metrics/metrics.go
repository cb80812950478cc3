// Package metrics exposes Prometheus collectors for the ledger engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ledger-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	productsRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "registry",
			Name:      "products_registered_total",
			Help:      "Total number of products registered.",
		},
	)

	checkpointsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "registry",
			Name:      "checkpoints_added_total",
			Help:      "Total number of checkpoints appended to product trails.",
		},
	)

	certificatesMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "certificates",
			Name:      "minted_total",
			Help:      "Total number of certificates minted.",
		},
	)

	complianceChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "compliance",
			Name:      "checks_total",
			Help:      "Total number of compliance checks recorded.",
		},
		[]string{"result"},
	)

	escrowReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "escrow",
			Name:      "milestone_releases_total",
			Help:      "Total number of escrow milestone releases.",
		},
	)

	rewardsAccrued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "rewards",
			Name:      "accruals_total",
			Help:      "Total number of reward accruals.",
		},
	)

	operationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "engine",
			Name:      "operations_rejected_total",
			Help:      "Total number of rejected operations by error kind.",
		},
		[]string{"service", "kind"},
	)

	instancesDeployed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_layer",
			Subsystem: "factory",
			Name:      "instances_deployed_total",
			Help:      "Total number of tenant instances deployed.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		productsRegistered,
		checkpointsAdded,
		certificatesMinted,
		complianceChecks,
		escrowReleases,
		rewardsAccrued,
		operationsRejected,
		instancesDeployed,
	)
}

// Handler returns an HTTP handler serving the ledger registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ProductRegistered counts a registered product.
func ProductRegistered() { productsRegistered.Inc() }

// CheckpointAdded counts an appended checkpoint.
func CheckpointAdded() { checkpointsAdded.Inc() }

// CertificateMinted counts a minted certificate.
func CertificateMinted() { certificatesMinted.Inc() }

// ComplianceChecked counts a recorded compliance check.
func ComplianceChecked(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	complianceChecks.WithLabelValues(result).Inc()
}

// EscrowReleased counts a milestone release.
func EscrowReleased() { escrowReleases.Inc() }

// RewardAccrued counts a reward accrual.
func RewardAccrued() { rewardsAccrued.Inc() }

// OperationRejected counts a rejected operation by service and error kind.
func OperationRejected(service, kind string) {
	operationsRejected.WithLabelValues(service, kind).Inc()
}

// InstanceDeployed counts a deployed tenant instance.
func InstanceDeployed(kind string) { instancesDeployed.WithLabelValues(kind).Inc() }
