package pagination

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/frontapp-tap/pkg/config"
)

// Query parameter names understood by the events endpoint.
const (
	ParamSortOrder = "sort_order"
	ParamLimit     = "limit"
	ParamTypes     = "q[types]"
	ParamAfter     = "q[after]"
	ParamBefore    = "q[before]"
)

var (
	// ErrInvalidToken is returned when a continuation token is not a usable URL.
	ErrInvalidToken = errors.New("invalid continuation token")

	// ErrTokenNotAdvancing is returned when a page repeats the previous token.
	ErrTokenNotAdvancing = errors.New("continuation token did not advance")
)

// FirstPageParams builds the query for the first page from configuration.
// Unset filters are omitted.
func FirstPageParams(cfg config.ExtractionConfig) url.Values {
	params := url.Values{}
	params.Set(ParamSortOrder, string(cfg.SortOrder))
	params.Set(ParamLimit, strconv.Itoa(cfg.PageSize))

	for _, t := range cfg.EventTypes {
		params.Add(ParamTypes, t)
	}
	if cfg.After != "" {
		params.Set(ParamAfter, cfg.After)
	}
	if cfg.Before != "" {
		params.Set(ParamBefore, cfg.Before)
	}

	return params
}

// NextPageParams returns exactly the query string of a continuation token,
// discarding scheme, host and path.
func NextPageParams(token string) (url.Values, error) {
	u, err := url.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if u.RawQuery == "" {
		return nil, fmt.Errorf("%w: %q has no query string", ErrInvalidToken, token)
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return params, nil
}

// ParamsFor returns NextPageParams(token) when a token is present and
// FirstPageParams(cfg) otherwise.
func ParamsFor(cfg config.ExtractionConfig, token string) (url.Values, error) {
	if token == "" {
		return FirstPageParams(cfg), nil
	}
	return NextPageParams(token)
}

type pageEnvelope struct {
	Pagination struct {
		Next *string `json:"next"`
	} `json:"_pagination"`
}

// ExtractContinuationToken reads _pagination.next from a page body.
// It returns "" when the field is absent, null or empty.
func ExtractContinuationToken(body []byte) (string, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode pagination: %w", err)
	}
	if env.Pagination.Next == nil {
		return "", nil
	}
	return strings.TrimSpace(*env.Pagination.Next), nil
}

// State is the pagination position of one run. The empty token means the
// first page has not been fetched yet; after Advance("") the run is done.
type State struct {
	token string
	pages int
	done  bool
}

// NewState starts pagination at token. An empty token starts at the first page.
func NewState(token string) *State {
	return &State{token: token}
}

// Token returns the continuation token for the next request.
func (s *State) Token() string {
	return s.token
}

// Pages returns how many pages have been completed.
func (s *State) Pages() int {
	return s.pages
}

// Done reports whether the last page has been seen.
func (s *State) Done() bool {
	return s.done
}

// Advance records a completed page and the token it returned.
func (s *State) Advance(next string) error {
	if next != "" && next == s.token {
		return fmt.Errorf("%w: %s", ErrTokenNotAdvancing, next)
	}
	s.pages++
	s.token = next
	s.done = next == ""
	return nil
}
