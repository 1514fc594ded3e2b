package dtf

import (
	"context"
	"encoding/json"
	"strings"

	"dtfcollect/lib/source"
	"dtfcollect/lib/universe"

	"go.opentelemetry.io/otel/codes"
)

type pageRequest struct {
	NextPageToken string       `json:"nextPageToken"`
	Filters       []pageFilter `json:"filters"`
}

type pageFilter struct {
	FilterID     string        `json:"filter_id"`
	FilterValues []filterValue `json:"filter_values"`
}

type filterValue struct {
	ID string `json:"id"`
}

type publicationsResponse struct {
	Publications  []json.RawMessage `json:"publications"`
	NextPageToken string            `json:"nextPageToken"`
	Total         int               `json:"total"`
}

// FetchPage requests one page of publications for a single applicant. An
// empty token asks for the first page; the returned page carries the token
// for the next one, empty when the cursor is exhausted.
func (s *Session) FetchPage(ctx context.Context, unitID, token string) (source.Page, error) {
	ctx, span := tracer.Start(ctx, "session:FetchPage")
	defer span.End()

	body := pageRequest{
		NextPageToken: token,
		Filters: []pageFilter{{
			FilterID:     "org_id",
			FilterValues: []filterValue{{ID: unitID}},
		}},
	}
	var out publicationsResponse
	res, err := s.apiRequest(ctx).
		SetBody(body).
		SetResult(&out).
		Post(publicationsPath)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return source.Page{}, &source.FetchError{Message: err.Error()}
	}
	if res.IsError() {
		err := &source.FetchError{
			HTTPStatus: res.StatusCode(),
			Message:    strings.TrimSpace(string(res.Body())),
		}
		span.SetStatus(codes.Error, err.Error())
		return source.Page{}, err
	}
	return source.Page{
		Items:     out.Publications,
		NextToken: out.NextPageToken,
		Total:     out.Total,
	}, nil
}

type applicantsResponse struct {
	Applicants    []applicantRow `json:"applicants"`
	NextPageToken string         `json:"nextPageToken"`
	TotalNrOfRows int            `json:"totalNrOfRows"`
}

type applicantRow struct {
	UniqueID json.RawMessage `json:"unique_ID"`
	Name     string          `json:"name"`
	Role     string          `json:"role"`
}

// FetchApplicantsPage walks the applicants cursor and is used to build the
// local catalog of work units. Same token contract as FetchPage.
func (s *Session) FetchApplicantsPage(ctx context.Context, token string) ([]universe.WorkUnit, string, error) {
	ctx, span := tracer.Start(ctx, "session:FetchApplicantsPage")
	defer span.End()

	var out applicantsResponse
	res, err := s.apiRequest(ctx).
		SetBody(pageRequest{NextPageToken: token, Filters: []pageFilter{}}).
		SetResult(&out).
		Post(applicantsPath)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, "", &source.FetchError{Message: err.Error()}
	}
	if res.IsError() {
		err := &source.FetchError{
			HTTPStatus: res.StatusCode(),
			Message:    strings.TrimSpace(string(res.Body())),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}

	units := make([]universe.WorkUnit, 0, len(out.Applicants))
	for _, row := range out.Applicants {
		id := idFromRaw(row.UniqueID)
		if id == "" {
			continue
		}
		units = append(units, universe.WorkUnit{
			ID:   id,
			Name: row.Name,
			Role: row.Role,
		})
	}
	return units, out.NextPageToken, nil
}

// idFromRaw normalizes the unique_ID field, which the remote serves as either
// a bare number or a string.
func idFromRaw(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) >= 2 && trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return ""
		}
		return v
	}
	return trimmed
}
