package domain

import (
	"encoding/json"
	"fmt"
)

// ActionKind discriminates the closed set of adapter actions
type ActionKind string

const (
	ActionSearch ActionKind = "SEARCH"
	ActionDetail ActionKind = "DETAIL"
	ActionApply  ActionKind = "APPLY"
)

// Action is a closed union: SearchAction, DetailAction or ApplyAction
type Action interface {
	Kind() ActionKind
	isAction()
}

// SearchAction carries a search already translated to the platform vocabulary
type SearchAction struct {
	Keywords string            `json:"keywords"`
	Location string            `json:"location,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// DetailAction fetches the full listing
type DetailAction struct {
	ListingID string `json:"listing_id"`
}

// ApplyAction submits an application to a listing
type ApplyAction struct {
	ListingID   string `json:"listing_id"`
	CoverLetter string `json:"cover_letter,omitempty"`
	ResumeURL   string `json:"resume_url,omitempty"`
}

func (SearchAction) Kind() ActionKind { return ActionSearch }
func (DetailAction) Kind() ActionKind { return ActionDetail }
func (ApplyAction) Kind() ActionKind  { return ActionApply }

func (SearchAction) isAction() {}
func (DetailAction) isAction() {}
func (ApplyAction) isAction()  {}

type actionEnvelope struct {
	Action ActionKind    `json:"action"`
	Search *SearchAction `json:"search,omitempty"`
	Detail *DetailAction `json:"detail,omitempty"`
	Apply  *ApplyAction  `json:"apply,omitempty"`
}

// EncodeAction serializes an action into the job parameters format
func EncodeAction(a Action) (json.RawMessage, error) {
	env := actionEnvelope{}
	switch v := a.(type) {
	case SearchAction:
		env.Action, env.Search = ActionSearch, &v
	case DetailAction:
		if v.ListingID == "" {
			return nil, fmt.Errorf("%w: detail action requires a listing id", ErrInvalidPayload)
		}
		env.Action, env.Detail = ActionDetail, &v
	case ApplyAction:
		if v.ListingID == "" {
			return nil, fmt.Errorf("%w: apply action requires a listing id", ErrInvalidPayload)
		}
		env.Action, env.Apply = ActionApply, &v
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", ErrInvalidPayload, a)
	}
	return json.Marshal(env)
}

// DecodeAction parses job parameters back into an Action
func DecodeAction(raw json.RawMessage) (Action, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty parameters", ErrInvalidPayload)
	}

	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Action {
	case ActionSearch:
		if env.Search == nil {
			return SearchAction{}, nil
		}
		return *env.Search, nil
	case ActionDetail:
		if env.Detail == nil || env.Detail.ListingID == "" {
			return nil, fmt.Errorf("%w: detail action requires a listing id", ErrInvalidPayload)
		}
		return *env.Detail, nil
	case ActionApply:
		if env.Apply == nil || env.Apply.ListingID == "" {
			return nil, fmt.Errorf("%w: apply action requires a listing id", ErrInvalidPayload)
		}
		return *env.Apply, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, env.Action)
	}
}
