package replay

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

// Fractions of sessions that end in a correct submission, per band.
const (
	randomFloatDivisor = 1000000
	outcomeDivisor     = 4
	caseCorrectFirst   = 0
	caseCorrectRetry   = 1
	caseIncorrect      = 2
	caseAbandoned      = 3
)

// Code fragments appended edit by edit to build up a plausible snapshot.
var codeFragments = []string{
	"def solve(xs):\n",
	"    total = 0\n",
	"    for x in xs:\n",
	"        total += x\n",
	"    return total\n",
	"\n",
	"print(solve([1, 2, 3]))\n",
}

// session is one simulated student working one problem.
type session struct {
	SubjectID string
	ProblemID string
	Edits     int
	Outcome   int64
}

// getRandomInt returns a uniform random int64 in [0, n).
func getRandomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// getRandomFloat returns a random float64 between 0.0 and 1.0.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateSessions produces the session plan for a replay run. Each session
// gets a fresh subject identity; problems are reused so the autograder has
// enough submissions per problem to build a model.
func generateSessions(config *Config) []session {
	sessions := make([]session, config.Sessions)
	for i := range sessions {
		sessions[i] = session{
			SubjectID: uuid.New().String(),
			ProblemID: "problem_" + strconv.Itoa(int(getRandomInt(int64(config.Problems)))+1),
			Edits:     config.Edits,
			Outcome:   getRandomInt(outcomeDivisor),
		}
	}
	return sessions
}

// snapshot returns the code state after n edits.
func snapshot(n int) string {
	if n > len(codeFragments) {
		n = len(codeFragments)
	}
	code := ""
	for i := 0; i < n; i++ {
		code += codeFragments[i]
	}
	return code
}

// score returns the submission score for a session outcome.
func (s session) score() float64 {
	switch s.Outcome {
	case caseCorrectFirst, caseCorrectRetry:
		return 1.0
	default:
		return 0.0
	}
}
