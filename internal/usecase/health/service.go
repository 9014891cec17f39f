package health

import "context"

// IndexReader reports retrieval index stats.
type IndexReader interface {
	Size() int
}

// DBPinger checks database availability. Optional — nil when the memory
// session driver is in use.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status      Status
	Checks      map[string]CheckResult
	IndexedDocs int
	LLMEnabled  bool
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	index      IndexReader
	llmEnabled bool
}

// New creates a Service. db can be nil.
func New(db DBPinger, index IndexReader, llmEnabled bool) *Service {
	return &Service{db: db, index: index, llmEnabled: llmEnabled}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{
		Status:      status,
		Checks:      checks,
		IndexedDocs: s.index.Size(),
		LLMEnabled:  s.llmEnabled,
	}
}
