package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?(\\{.*?\\})\\s*```")
	// Matches the trailing tech stack block of the spec document.
	techStackBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)[ \\t]*\\n?(\\{\\s*\"tech_stack\".*?\\})\\s*```\\s*$")
)

// extractJSON returns the first JSON object in text. It accepts a bare
// object, an object inside a fenced code block, or an object embedded in
// surrounding prose.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return text, true
	}
	if m := fencedJSONRe.FindStringSubmatch(text); len(m) == 2 && json.Valid([]byte(m[1])) {
		return m[1], true
	}
	if obj, ok := scanObject(text); ok {
		return obj, true
	}
	return "", false
}

// scanObject finds the first balanced {...} span that is valid JSON.
func scanObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func decodeJSON(stage core.Stage, text string, out interface{}) error {
	raw, ok := extractJSON(text)
	if !ok {
		return core.ErrValidation(core.CodeParseFailed,
			fmt.Sprintf("%s: response contains no JSON object", stage))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return core.ErrValidation(core.CodeParseFailed,
			fmt.Sprintf("%s: malformed JSON: %v", stage, err)).WithCause(err)
	}
	return nil
}

func emptyOutput(stage core.Stage, what string) error {
	return core.ErrValidation(core.CodeEmptyStageOutput, fmt.Sprintf("%s: %s", stage, what))
}

func parseQuestions(text string, max int, personas []core.PersonaConfig) ([]core.Question, error) {
	var resp struct {
		Questions []struct {
			Text    string `json:"text"`
			Persona string `json:"persona"`
		} `json:"questions"`
	}
	if err := decodeJSON(core.StageQuestions, text, &resp); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(personas))
	for _, p := range personas {
		known[p.ID] = true
	}
	out := make([]core.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		t := strings.TrimSpace(q.Text)
		if t == "" {
			continue
		}
		persona := strings.TrimSpace(q.Persona)
		if !known[persona] {
			persona = ""
		}
		out = append(out, core.Question{ID: fmt.Sprintf("q%d", len(out)+1), Text: t, Persona: persona})
		if max > 0 && len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		return nil, emptyOutput(core.StageQuestions, "no questions generated")
	}
	return out, nil
}

func parseChallenges(text string) ([]core.Challenge, error) {
	var resp struct {
		Challenges []struct {
			Target string `json:"target"`
			Text   string `json:"text"`
		} `json:"challenges"`
	}
	if err := decodeJSON(core.StageChallenge, text, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Challenge, 0, len(resp.Challenges))
	for _, c := range resp.Challenges {
		t := strings.TrimSpace(c.Text)
		if t == "" {
			continue
		}
		out = append(out, core.Challenge{ID: fmt.Sprintf("c%d", len(out)+1), Target: strings.TrimSpace(c.Target), Text: t})
	}
	return out, nil
}

// Debate outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeOpen     = "open"
)

func parseResolutions(text string, challenges []core.Challenge) ([]core.DebateResolution, error) {
	var resp struct {
		Resolutions []struct {
			ChallengeID string `json:"challenge_id"`
			Resolution  string `json:"resolution"`
			Outcome     string `json:"outcome"`
		} `json:"resolutions"`
	}
	if err := decodeJSON(core.StageChallenge, text, &resp); err != nil {
		return nil, err
	}
	byID := make(map[string]bool, len(challenges))
	for _, c := range challenges {
		byID[c.ID] = true
	}
	seen := make(map[string]bool)
	out := make([]core.DebateResolution, 0, len(resp.Resolutions))
	for _, r := range resp.Resolutions {
		id := strings.TrimSpace(r.ChallengeID)
		if !byID[id] || seen[id] || strings.TrimSpace(r.Resolution) == "" {
			continue
		}
		seen[id] = true
		outcome := strings.ToLower(strings.TrimSpace(r.Outcome))
		switch outcome {
		case OutcomeAccepted, OutcomeRejected, OutcomeOpen:
		default:
			outcome = OutcomeOpen
		}
		out = append(out, core.DebateResolution{ChallengeID: id, Resolution: strings.TrimSpace(r.Resolution), Outcome: outcome})
	}
	// Every challenge gets a resolution, even if the moderator skipped it.
	for _, c := range challenges {
		if !seen[c.ID] {
			out = append(out, core.DebateResolution{ChallengeID: c.ID, Resolution: "not addressed by the panel", Outcome: OutcomeOpen})
		}
	}
	return out, nil
}

// parseSynthesis accepts the structured form and falls back to treating the
// whole response as free-form content.
func parseSynthesis(personaID, text string) (core.Synthesis, error) {
	var resp struct {
		Content         string   `json:"content"`
		KeyPoints       []string `json:"key_points"`
		Risks           []string `json:"risks"`
		Recommendations []string `json:"recommendations"`
	}
	s := core.Synthesis{PersonaID: personaID}
	if err := decodeJSON(core.StageSynthesis, text, &resp); err == nil && strings.TrimSpace(resp.Content) != "" {
		s.Content = strings.TrimSpace(resp.Content)
		s.KeyPoints = trimAll(resp.KeyPoints)
		s.Risks = trimAll(resp.Risks)
		s.Recommendations = trimAll(resp.Recommendations)
		return s, nil
	}
	s.Content = strings.TrimSpace(text)
	if s.Content == "" {
		return s, emptyOutput(core.StageSynthesis, "persona "+personaID+" returned an empty synthesis")
	}
	return s, nil
}

// ReviewPassScore is the minimum score for a review to pass.
const ReviewPassScore = 70

func parseReview(text string, personas []core.PersonaConfig) (*core.ReviewResult, error) {
	var resp struct {
		Score   float64 `json:"score"`
		Summary string  `json:"summary"`
		Issues  []struct {
			Severity    string `json:"severity"`
			Description string `json:"description"`
			PersonaID   string `json:"persona_id"`
		} `json:"issues"`
	}
	if err := decodeJSON(core.StageReview, text, &resp); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(personas))
	for _, p := range personas {
		known[p.ID] = true
	}
	rr := &core.ReviewResult{Score: clamp(resp.Score, 0, 100), Summary: strings.TrimSpace(resp.Summary)}
	for _, is := range resp.Issues {
		desc := strings.TrimSpace(is.Description)
		if desc == "" {
			continue
		}
		pid := is.PersonaID
		if !known[pid] {
			pid = ""
		}
		rr.Issues = append(rr.Issues, core.ReviewIssue{Severity: normalizeSeverity(is.Severity), Description: desc, PersonaID: pid})
	}
	rr.Passed = rr.CountBySeverity(core.SeverityCritical) == 0 && rr.Score >= ReviewPassScore
	return rr, nil
}

func normalizeSeverity(s string) core.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "high":
		return core.SeverityCritical
	case "major", "medium":
		return core.SeverityMajor
	default:
		return core.SeverityMinor
	}
}

type voteResponse struct {
	Approved   *bool    `json:"approved"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence"`
}

func parseVote(text string) (approved bool, reasoning string, confidence *float64, err error) {
	var resp voteResponse
	if err := decodeJSON(core.StageVoting, text, &resp); err != nil {
		return false, "", nil, err
	}
	if resp.Approved == nil {
		return false, "", nil, core.ErrValidation(core.CodeParseFailed, "voting: vote is missing the approved field")
	}
	if resp.Confidence != nil {
		c := clamp(*resp.Confidence, 0, 1)
		confidence = &c
	}
	return *resp.Approved, strings.TrimSpace(resp.Reasoning), confidence, nil
}

// parseSpec splits the generated document from its trailing tech stack block.
func parseSpec(text string) (string, []core.TechStackItem, error) {
	text = strings.TrimSpace(text)
	var stack []core.TechStackItem
	if loc := techStackBlockRe.FindStringSubmatchIndex(text); loc != nil {
		var resp struct {
			TechStack []core.TechStackItem `json:"tech_stack"`
		}
		if err := json.Unmarshal([]byte(text[loc[2]:loc[3]]), &resp); err == nil {
			for _, it := range resp.TechStack {
				if strings.TrimSpace(it.Name) == "" {
					continue
				}
				stack = append(stack, it)
			}
			text = strings.TrimSpace(text[:loc[0]])
		}
	}
	if text == "" {
		return "", nil, emptyOutput(core.StageSpec, "empty specification document")
	}
	return text, stack, nil
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
