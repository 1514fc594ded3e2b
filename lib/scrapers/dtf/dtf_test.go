package dtf

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dtfcollect/lib/source"

	"github.com/stretchr/testify/require"
)

const explorePage = `<html><head><title>Deep Tech Finder</title></head><body></body></html>`
const challengePage = `<html><head><title>Just a moment...</title></head><body><form id="challenge-form"></form></body></html>`

func newRemote(t *testing.T, handler http.HandlerFunc) *Provider {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewProvider(ProviderOptions{BaseUrl: server.URL})
	require.NoError(t, err)
	return provider
}

func TestEstablishWarmsUp(t *testing.T) {
	exploreHits := 0
	provider := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, explorePath, r.URL.Path)
		exploreHits++
		w.Write([]byte(explorePage))
	})

	sess, err := provider.Establish(context.Background())
	require.NoError(t, err)
	defer sess.Close()
	require.Equal(t, 1, exploreHits)
}

func TestEstablishChallengeNotCleared(t *testing.T) {
	provider := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(challengePage))
	})

	_, err := provider.Establish(context.Background())
	require.Error(t, err)
	var sessErr *source.SessionError
	require.ErrorAs(t, err, &sessErr)
	require.Equal(t, "establish", sessErr.Op)
}

func TestFetchPageFollowsCursor(t *testing.T) {
	provider := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case explorePath:
			w.Write([]byte(explorePage))
		case publicationsPath:
			var req pageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Filters, 1)
			require.Equal(t, "org_id", req.Filters[0].FilterID)
			require.Equal(t, "1068", req.Filters[0].FilterValues[0].ID)

			w.Header().Set("content-type", "application/json")
			if req.NextPageToken == "" {
				w.Write([]byte(`{"publications":[{"title":"one"},{"title":"two"}],"nextPageToken":"t2","total":3}`))
			} else {
				require.Equal(t, "t2", req.NextPageToken)
				w.Write([]byte(`{"publications":[{"title":"three"}],"nextPageToken":"","total":3}`))
			}
		default:
			http.NotFound(w, r)
		}
	})

	sess, err := provider.Establish(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	page, err := sess.FetchPage(context.Background(), "1068", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "t2", page.NextToken)
	require.Equal(t, 3, page.Total)

	page, err = sess.FetchPage(context.Background(), "1068", page.NextToken)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextToken)
}

func TestFetchPageHTTPError(t *testing.T) {
	provider := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == explorePath {
			w.Write([]byte(explorePage))
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	sess, err := provider.Establish(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.FetchPage(context.Background(), "1068", "")
	var fetchErr *source.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusTooManyRequests, fetchErr.HTTPStatus)
}

func TestFetchApplicantsPage(t *testing.T) {
	provider := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case explorePath:
			w.Write([]byte(explorePage))
		case applicantsPath:
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(`{
				"applicants": [
					{"unique_ID": 1068, "name": "Acme Robotics", "role": "company"},
					{"unique_ID": "2001", "name": "TU Delft", "role": "school"}
				],
				"nextPageToken": "",
				"totalNrOfRows": 2
			}`))
		default:
			http.NotFound(w, r)
		}
	})

	sess, err := provider.Establish(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	dtfSess := sess.(*Session)
	units, next, err := dtfSess.FetchApplicantsPage(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, units, 2)
	// numeric and string ids normalize the same way
	require.Equal(t, "1068", units[0].ID)
	require.Equal(t, "2001", units[1].ID)
	require.Equal(t, "school", units[1].Role)
}
