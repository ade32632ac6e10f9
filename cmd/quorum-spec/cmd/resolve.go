package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// sessionSource lets fuzzy match against session ids and ideas.
type sessionSource []core.SessionSummary

func (s sessionSource) String(i int) string { return s[i].SessionID + " " + s[i].Idea }
func (s sessionSource) Len() int            { return len(s) }

// resolveSessionID maps user input to a session id. It accepts a full id, a
// unique id prefix and, when fuzzyOK, a unique fuzzy match on the id or idea.
func (a *app) resolveSessionID(ctx context.Context, arg string, fuzzyOK bool) (string, error) {
	arg = strings.TrimSpace(arg)
	list, err := a.manager.List(ctx)
	if err != nil {
		return "", err
	}

	var prefixed []string
	for _, s := range list {
		if s.SessionID == arg {
			return arg, nil
		}
		if strings.HasPrefix(s.SessionID, arg) {
			prefixed = append(prefixed, s.SessionID)
		}
	}
	switch len(prefixed) {
	case 1:
		return prefixed[0], nil
	case 0:
	default:
		return "", core.ErrValidation(core.CodeAmbiguousSession,
			fmt.Sprintf("%q matches %d sessions: %s", arg, len(prefixed), strings.Join(prefixed, ", ")))
	}
	if !fuzzyOK || arg == "" {
		return "", core.ErrNotFound("session", arg)
	}

	matches := fuzzy.FindFrom(arg, sessionSource(list))
	switch {
	case len(matches) == 0:
		return "", core.ErrNotFound("session", arg)
	case len(matches) == 1 || matches[0].Score > matches[1].Score:
		return list[matches[0].Index].SessionID, nil
	}
	var names []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		s := list[m.Index]
		names = append(names, fmt.Sprintf("%s (%s)", s.SessionID, truncate(s.Idea, 30)))
	}
	return "", core.ErrValidation(core.CodeAmbiguousSession,
		fmt.Sprintf("%q matches several sessions: %s", arg, strings.Join(names, ", ")))
}
