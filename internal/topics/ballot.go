package topics

import "fmt"

// resolveBallot validates choices against the topic's current answers and
// returns them in answer order.
func resolveBallot(topic Topic, choices []string) ([]string, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: at least one choice is required", ErrValidation)
	}

	selected := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		if _, ok := selected[choice]; ok {
			return nil, fmt.Errorf("%w: choice %q submitted twice", ErrValidation, choice)
		}
		selected[choice] = struct{}{}
	}

	if !topic.AllowMultiSelect && len(choices) > 1 {
		return nil, fmt.Errorf("%w: topic accepts a single choice, got %d", ErrTooManyChoices, len(choices))
	}

	for _, choice := range choices {
		if !topic.HasAnswer(choice) {
			return nil, fmt.Errorf("%w: %q is not an option of this topic", ErrInvalidChoice, choice)
		}
	}

	ordered := make([]string, 0, len(choices))
	for _, answer := range topic.Answers {
		if _, ok := selected[answer]; ok {
			ordered = append(ordered, answer)
		}
	}
	return ordered, nil
}

// Results is the aggregate over a topic's live ballots.
type Results struct {
	Answers         []string
	PerOptionCounts map[string]int
	TotalVotes      int
	TotalSelections int
}

// Percentage returns the option's share of all selections, in 0..100.
func (results Results) Percentage(option string) float64 {
	if results.TotalSelections == 0 {
		return 0
	}
	return float64(results.PerOptionCounts[option]) * 100 / float64(results.TotalSelections)
}

// tallyBallots aggregates ballots against the answers visible in the same snapshot.
func tallyBallots(answers []string, ballots []Ballot) Results {
	results := Results{
		Answers:         append([]string(nil), answers...),
		PerOptionCounts: make(map[string]int, len(answers)),
	}
	for _, answer := range answers {
		results.PerOptionCounts[answer] = 0
	}
	for _, ballot := range ballots {
		counted := false
		for _, choice := range ballot.Choices {
			if _, ok := results.PerOptionCounts[choice]; !ok {
				continue
			}
			results.PerOptionCounts[choice]++
			results.TotalSelections++
			counted = true
		}
		if counted {
			results.TotalVotes++
		}
	}
	return results
}
