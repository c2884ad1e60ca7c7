package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loadboard/load"
)

// LoadFinder is the subset of the load store the engine needs: the carrier's
// active assignment and the open pool keyed by origin.
type LoadFinder interface {
	GetActiveForCarrier(ctx context.Context, carrierID string) (load.Load, error)
	ListOpenByOrigin(ctx context.Context, origin string) ([]load.Load, error)
}

// Result is a count-bearing message plus the suggested loads, shaped for the
// chat surface.
type Result struct {
	Message string
	Loads   []load.Load
}

// Service suggests repositioning loads: open loads whose origin matches the
// destination of the carrier's active load. Matching is exact string
// equality on the location fields.
type Service struct {
	loads LoadFinder
}

func NewService(loads LoadFinder) *Service {
	return &Service{loads: loads}
}

// RecommendLoads finds repositioning candidates for the carrier's active
// load.
func (s *Service) RecommendLoads(ctx context.Context, carrierID string) (Result, error) {
	active, err := s.loads.GetActiveForCarrier(ctx, carrierID)
	if err != nil {
		if errors.Is(err, load.ErrNotFound) {
			return Result{Message: "You have no active load right now. Accept a load first and I can suggest what to haul next."}, nil
		}
		return Result{}, err
	}

	candidates, err := s.loads.ListOpenByOrigin(ctx, active.Destination)
	if err != nil {
		return Result{}, err
	}

	if len(candidates) == 0 {
		return Result{
			Message: fmt.Sprintf("No open loads out of %s yet. Check back closer to delivery.", active.Destination),
			Loads:   []load.Load{},
		}, nil
	}

	return Result{
		Message: fmt.Sprintf("Found %d open load(s) out of %s for after your delivery.", len(candidates), active.Destination),
		Loads:   candidates,
	}, nil
}

// repositioningKeywords trigger a recommendation from free-form commands.
var repositioningKeywords = []string{
	"next load", "find load", "find me", "suggest", "reposition", "what's next", "whats next",
}

// HandleCommand interprets a natural-language-ish chat command. Unrecognized
// commands get a help message rather than an error.
func (s *Service) HandleCommand(ctx context.Context, carrierID, command string) (Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(command))
	if normalized == "" {
		return Result{Message: `Try "find my next load" once you have an active load.`}, nil
	}

	for _, kw := range repositioningKeywords {
		if strings.Contains(normalized, kw) {
			return s.RecommendLoads(ctx, carrierID)
		}
	}

	return Result{Message: `I didn't catch that. Try "find my next load" to get repositioning suggestions.`}, nil
}
