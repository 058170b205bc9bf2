package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Params(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"q": q.Get("q"), "key": q.Get("key"), "cx": q.Get("cx"),
			"num": q.Get("num"), "dateRestrict": q.Get("dateRestrict"), "searchType": q.Get("searchType"),
		}
		fmt.Fprint(w, `{"items":[{"link":"https://a.example"},{"link":""},{"link":"https://b.example"}]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, APIKey: "k", EngineID: "cx", DateRestrict: "d2"})
	links, err := c.Search(context.Background(), "typhoon forecast", 4, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, links)
	assert.Equal(t, map[string]string{
		"q": "typhoon forecast", "key": "k", "cx": "cx",
		"num": "4", "dateRestrict": "d2", "searchType": "image",
	}, got)
}

func TestSearch_NonOKYieldsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	links, err := NewClient(Config{Endpoint: ts.URL}).Search(context.Background(), "q", 2, false)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSearch_NoItems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("searchType"))
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	links, err := NewClient(Config{Endpoint: ts.URL}).Search(context.Background(), "q", 2, false)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSearch_Quota(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewClient(Config{Endpoint: ts.URL}).Search(context.Background(), "q", 2, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestSearch_CounterConcurrent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Search(context.Background(), "q", 1, false)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), c.Count())

	c.ResetCount()
	assert.Equal(t, int64(0), c.Count())
}
