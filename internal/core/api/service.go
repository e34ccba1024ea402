// Package api provides the gRPC decision service over the rule engine.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/verdict/internal/core/auth"
	"github.com/solatis/verdict/internal/core/metrics"
	"github.com/solatis/verdict/internal/rules"
	"github.com/solatis/verdict/internal/types"
)

// DecisionService implements DecisionServer.
// Thin orchestration layer: builds an engine per request over the current registry and
// streams its records.
type DecisionService struct {
	registry atomic.Pointer[rules.Registry]
	logger   *slog.Logger
	metrics  *metrics.Collector
	maxDepth int
	timeout  time.Duration
}

var _ DecisionServer = (*DecisionService)(nil)

// ServiceOption configures a DecisionService.
type ServiceOption func(*DecisionService)

// WithMetrics records evaluations into c.
func WithMetrics(c *metrics.Collector) ServiceOption {
	return func(s *DecisionService) { s.metrics = c }
}

// WithRequestTimeout bounds each evaluation. Zero disables the bound.
func WithRequestTimeout(d time.Duration) ServiceOption {
	return func(s *DecisionService) { s.timeout = d }
}

// WithMaxGraphDepth sets the rule-graph recursion bound passed to each engine.
func WithMaxGraphDepth(n int) ServiceOption {
	return func(s *DecisionService) { s.maxDepth = n }
}

// NewDecisionService creates a service serving reg.
func NewDecisionService(reg *rules.Registry, logger *slog.Logger, opts ...ServiceOption) (*DecisionService, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &DecisionService{
		logger:   logger,
		maxDepth: types.DefaultMaxGraphDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry.Store(reg)
	return s, nil
}

// SetRegistry swaps the rule set. In-flight evaluations finish on the registry they
// started with.
func (s *DecisionService) SetRegistry(reg *rules.Registry) {
	s.registry.Store(reg)
	s.logger.Info("rule set replaced", "rules", reg.Len())
}

// Registry returns the current rule set.
func (s *DecisionService) Registry() *rules.Registry {
	return s.registry.Load()
}

// Evaluate runs the rules against req's "context" field and streams each record.
func (s *DecisionService) Evaluate(req *structpb.Struct, stream DecisionService_EvaluateServer) error {
	start := time.Now()
	err := s.evaluate(req, stream)

	if s.metrics != nil {
		result := metrics.StatusOK
		if err != nil {
			result = metrics.StatusError
		}
		s.metrics.RecordEvaluation(result, time.Since(start))
	}
	return err
}

func (s *DecisionService) evaluate(req *structpb.Struct, stream DecisionService_EvaluateServer) error {
	ctx := stream.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	field, ok := req.GetFields()["context"]
	if !ok {
		return status.Error(codes.InvalidArgument, "request must carry a context field")
	}

	opts := []rules.Option{
		rules.WithLogger(s.logger),
		rules.WithMaxGraphDepth(s.maxDepth),
	}
	if s.metrics != nil {
		opts = append(opts, rules.WithObserver(s.metrics))
	}

	engine, err := rules.NewEngineWithRegistry(s.registry.Load(), field.AsInterface(), opts...)
	if err != nil {
		return toStatus(err)
	}

	logger := s.logger
	if client, ok := auth.ClientFromContext(ctx); ok {
		logger = logger.With("client", client.Name)
	}

	sent := 0
	for rec, err := range engine.EvaluateContext(ctx) {
		if err != nil {
			logger.Warn("evaluation failed", "records", sent, "error", err)
			return toStatus(err)
		}
		msg, err := structpb.NewStruct(rec.Map())
		if err != nil {
			return status.Error(codes.Internal, fmt.Sprintf("failed to encode record: %v", err))
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		sent++
	}

	logger.Debug("evaluation finished", "records", sent)
	return nil
}
